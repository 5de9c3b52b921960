// Package pipeline sequences the page-processing flow: load, detect,
// refine, crop, manifest. One request runs synchronously end to end.
package pipeline

import (
	"context"
	"net/url"
	"path"

	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/internal/utils"
	"github.com/menta2k/album-cataloger/pkg/cropper"
	"github.com/menta2k/album-cataloger/pkg/detection"
	"github.com/menta2k/album-cataloger/pkg/loader"
	"github.com/menta2k/album-cataloger/pkg/types"
)

// State names the flow stages, used for logging and failure reporting.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateLoading       State = "loading"
	StateDetecting     State = "detecting"
	StateRefining      State = "refining"
	StateCropping      State = "cropping"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Recognizer is the two-pass capability the flow needs from the detection
// layer. detection.Detector satisfies it; tests use stubs.
type Recognizer interface {
	DetectItems(ctx context.Context, imgB64 string, w, h int, c detection.Constraints) (*types.PageItems, error)
	RefineItems(ctx context.Context, imgB64 string, w, h int, prior *types.PageItems, c detection.Constraints) (*types.PageItems, error)
	Model() string
}

// Request is one page-processing invocation.
type Request struct {
	Source       loader.Source
	Mode         types.DetectMode
	MaxItems     int
	DownscaleMax int
	GridRows     int
	GridCols     int
}

// Response is the successful flow result.
type Response struct {
	ImageDimensions types.ImageDimensions `json:"image_dimensions"`
	Items           []types.ResolvedItem  `json:"items"`
	Crops           []types.CropRecord    `json:"crops"`
	ManifestPath    string                `json:"manifest_path"`
	ModelUsed       string                `json:"model_used"`
	Note            string                `json:"note"`
}

// Limits holds flow-level defaults applied when a request leaves the
// corresponding knob unset.
type Limits struct {
	MaxItems int
}

// Flow wires the pipeline stages together.
type Flow struct {
	loader   *loader.Loader
	rec      Recognizer
	loadOpts loader.Options
	cropCfg  cropper.Config
	limits   Limits
	log      zerolog.Logger
}

// New builds a Flow. cropCfg.DownscaleMax and limits act as defaults and can
// be tightened per request.
func New(l *loader.Loader, rec Recognizer, loadOpts loader.Options, cropCfg cropper.Config, limits Limits, log zerolog.Logger) *Flow {
	return &Flow{loader: l, rec: rec, loadOpts: loadOpts, cropCfg: cropCfg, limits: limits, log: log}
}

// Process runs one request through the state machine. Errors before the
// cropping stage abort with no partial manifest; clamp rejections during
// cropping skip the item only.
func (f *Flow) Process(ctx context.Context, req Request) (*Response, error) {
	state := StateAwaitingInput
	log := f.log.With().Str("source", req.Source.Descriptor()).Logger()

	fail := func(err error) (*Response, error) {
		log.Error().Err(err).Str("state", string(state)).Msg("page flow failed")
		return nil, err
	}

	if req.Source.Empty() {
		return fail(loader.ErrMissingInput)
	}

	state = StateLoading
	img, err := f.loader.Load(ctx, req.Source, f.loadOpts)
	if err != nil {
		return fail(err)
	}
	log.Info().Int("width", img.Width).Int("height", img.Height).Msg("page loaded")

	cons := detection.Constraints{
		Mode:     req.Mode,
		MaxItems: req.MaxItems,
		GridRows: req.GridRows,
		GridCols: req.GridCols,
	}
	if cons.MaxItems <= 0 {
		cons.MaxItems = f.limits.MaxItems
	}

	state = StateDetecting
	detected, err := f.rec.DetectItems(ctx, img.B64, img.Width, img.Height, cons)
	if err != nil {
		return fail(err)
	}
	log.Info().Int("items", len(detected.Items)).Msg("detection pass complete")

	state = StateRefining
	refined, err := f.rec.RefineItems(ctx, img.B64, img.Width, img.Height, detected, cons)
	if err != nil {
		return fail(err)
	}

	// An empty refinement pass falls back to the unrefined detection list.
	final := refined.Items
	if len(final) == 0 {
		log.Warn().Msg("refinement returned no items, falling back to detection list")
		final = detected.Items
	}

	state = StateCropping
	cropCfg := f.cropCfg
	if req.DownscaleMax > 0 {
		cropCfg.DownscaleMax = req.DownscaleMax
	}
	c := cropper.New(cropCfg, log)
	res, err := c.Run(img.Image, img.Width, img.Height, pageID(req.Source), req.Source.Descriptor(), f.rec.Model(), modeOrDefault(req.Mode), final)
	if err != nil {
		return fail(err)
	}

	state = StateDone
	log.Info().Int("items", len(res.Items)).Str("manifest", res.ManifestPath).Msg("page flow complete")

	return &Response{
		ImageDimensions: types.ImageDimensions{Width: img.Width, Height: img.Height},
		Items:           res.Items,
		Crops:           res.Crops,
		ManifestPath:    res.ManifestPath,
		ModelUsed:       f.rec.Model(),
		Note:            note(modeOrDefault(req.Mode)),
	}, nil
}

func modeOrDefault(m types.DetectMode) types.DetectMode {
	if m == "" {
		return types.FreeForm
	}
	return m
}

func note(m types.DetectMode) string {
	if m == types.GridAware {
		return "Two-pass LLM-only detection (detect + refine) over an inferred pocket grid with strict JSON schema."
	}
	return "Two-pass LLM-only detection (detect + refine) with strict JSON schema."
}

// pageID derives a stable identifier from the source: the slugified object
// path basename, the slugified URL path basename, or "page".
func pageID(src loader.Source) string {
	if src.ObjectURI != "" {
		return utils.Slugify(path.Base(src.ObjectURI), "page")
	}
	if src.RemoteURL != "" {
		if u, err := url.Parse(src.RemoteURL); err == nil {
			return utils.Slugify(path.Base(u.Path), "page")
		}
	}
	return "page"
}
