// Package server exposes the HTTP API: the page-processing endpoint, the
// collection read endpoints, and operational routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/pkg/catalog"
	"github.com/menta2k/album-cataloger/pkg/loader"
	"github.com/menta2k/album-cataloger/pkg/pipeline"
	"github.com/menta2k/album-cataloger/pkg/types"
)

// Processor runs one page through the processing flow. pipeline.Flow
// satisfies it; tests use stubs.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// Options configures the HTTP surface.
type Options struct {
	MaxBodyBytes int64
	CORSOrigins  []string
}

// Server handles the catalog API.
type Server struct {
	flow     Processor
	catalog  catalog.Reader
	validate *validator.Validate
	opts     Options
	metrics  *Metrics
	registry *prometheus.Registry
	log      zerolog.Logger
}

// New builds a Server. catalog may be nil when no document store is
// configured; the collection routes then serve empty results.
func New(flow Processor, cat catalog.Reader, opts Options, reg *prometheus.Registry, log zerolog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 20 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		flow:     flow,
		catalog:  cat,
		validate: validator.New(),
		opts:     opts,
		metrics:  NewMetrics(reg),
		registry: reg,
		log:      log,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(accessLog(s.log))
	r.Use(s.countRequests)

	r.Get("/", s.handleWelcome)
	r.Get("/api/collections", s.handleCollections)
	r.Get("/api/collections/{id}", s.handleCollectionDetails)
	r.Get("/api/items/{id}", s.handleItemCollection)
	r.Post("/api/processImage", s.handleProcessImage)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", "")
	})
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Heritage Gallery API",
	})
}

// handleCollections returns the collection index document, or an empty
// list when none has been imported yet.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	doc, err := s.catalogGet(r.Context(), "collections")
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]json.RawMessage{"collections": json.RawMessage(`[]`)})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("collection index read failed")
		writeError(w, http.StatusInternalServerError, "Failed to load collections", "", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"collections": doc})
}

func (s *Server) handleCollectionDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.catalogGet(r.Context(), "collection_details/"+id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Collection not found", "", "")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("collection", id).Msg("collection read failed")
		writeError(w, http.StatusInternalServerError, "Failed to load collection", "", "")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// handleItemCollection serves the same detail document wrapped for the
// item browser view.
func (s *Server) handleItemCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.catalogGet(r.Context(), "collection_details/"+id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item collection not found", "", "")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("collection", id).Msg("item collection read failed")
		writeError(w, http.StatusInternalServerError, "Failed to load item collection", "", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"itemCollection": doc})
}

func (s *Server) catalogGet(ctx context.Context, key string) (json.RawMessage, error) {
	if s.catalog == nil {
		return nil, catalog.ErrNotFound
	}
	return s.catalog.Get(ctx, key)
}

// processImageRequest is the POST /api/processImage payload. Exactly one
// image source field should be set; precedence when several are present is
// inline, then object URI, then remote URL.
type processImageRequest struct {
	ImageDataURL string `json:"imageDataUrl"`
	GCSUri       string `json:"gcsUri"`
	ImageURL     string `json:"imageUrl" validate:"omitempty,url"`
	Mode         string `json:"mode" validate:"omitempty,oneof=freeform grid"`
	MaxItems     int    `json:"maxItems" validate:"omitempty,min=1,max=64"`
	DownscaleMax int    `json:"downscaleMax" validate:"omitempty,min=64,max=4096"`
	GridRows     int    `json:"gridRows" validate:"omitempty,min=1,max=12"`
	GridCols     int    `json:"gridCols" validate:"omitempty,min=1,max=12"`
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var req processImageRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", pipeline.CodeMissingInput, err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request parameters", pipeline.CodeMissingInput, err.Error())
		return
	}

	preq := pipeline.Request{
		Source: loader.Source{
			InlineDataURL: req.ImageDataURL,
			ObjectURI:     req.GCSUri,
			RemoteURL:     req.ImageURL,
		},
		Mode:         types.DetectMode(req.Mode),
		MaxItems:     req.MaxItems,
		DownscaleMax: req.DownscaleMax,
		GridRows:     req.GridRows,
		GridCols:     req.GridCols,
	}

	start := time.Now()
	resp, err := s.flow.Process(r.Context(), preq)
	s.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status, code := pipeline.Classify(err)
		s.metrics.PagesProcessed.WithLabelValues("error").Inc()
		details := ""
		if status >= http.StatusInternalServerError {
			// Server faults get logged in full, clients get the code.
			s.log.Error().Err(err).Msg("page processing failed")
		} else {
			details = err.Error()
		}
		writeError(w, status, fmt.Sprintf("Processing failed (%s)", code), code, details)
		return
	}

	s.metrics.PagesProcessed.WithLabelValues("ok").Inc()
	s.metrics.ItemsCropped.Add(float64(len(resp.Crops)))
	writeJSON(w, http.StatusOK, resp)
}
