// Package loader normalizes a page image from one of three sources (inline
// data URL, cloud object reference, remote URL) into a decoded raster plus a
// lossless transport encoding for the recognition service.
package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/album-cataloger/pkg/storage"
)

// ErrMissingInput is returned when none of the three image sources is set.
var ErrMissingInput = errors.New("no image provided (expected inline data URL, object URI, or remote URL)")

// DecodeError wraps an unreadable or zero-dimension image payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("unsupported or corrupt image: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// NetworkFetchError wraps an exhausted remote image fetch.
type NetworkFetchError struct {
	URL string
	Err error
}

func (e *NetworkFetchError) Error() string {
	return fmt.Sprintf("http fetch failed for %s: %v", e.URL, e.Err)
}
func (e *NetworkFetchError) Unwrap() error { return e.Err }

// Source carries the mutually exclusive image inputs of one request.
type Source struct {
	InlineDataURL string
	ObjectURI     string
	RemoteURL     string
}

// Empty reports whether no source was supplied.
func (s Source) Empty() bool {
	return s.InlineDataURL == "" && s.ObjectURI == "" && s.RemoteURL == ""
}

// Descriptor names the source for the manifest.
func (s Source) Descriptor() string {
	switch {
	case s.RemoteURL != "":
		return s.RemoteURL
	case s.ObjectURI != "":
		return s.ObjectURI
	default:
		return "data-url"
	}
}

// SourceImage is the normalized page image: the decoded raster, its final
// dimensions, the lossless PNG re-encode, and the base64 transport form.
// Immutable once loaded.
type SourceImage struct {
	Image  image.Image
	PNG    []byte
	B64    string
	Width  int
	Height int
}

// Options bounds the load.
type Options struct {
	Timeout  time.Duration // remote fetch timeout, default 25s
	MaxSide  int           // longest side after normalization, default 4096
	MaxBytes int64         // remote response ceiling, default 60MiB
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 25 * time.Second
	}
	if o.MaxSide <= 0 {
		o.MaxSide = 4096
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 60 << 20
	}
	return o
}

// Backoff schedule for transient remote fetch failures. The zero delay is
// the initial attempt.
var fetchBackoff = []time.Duration{0, 300 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond}

// Loader resolves and normalizes page images.
type Loader struct {
	store      storage.ObjectStore
	httpClient *http.Client
	log        zerolog.Logger
}

// New builds a Loader. store may be nil when object references are not used.
func New(store storage.ObjectStore, log zerolog.Logger) *Loader {
	return &Loader{
		store: store,
		httpClient: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		log: log,
	}
}

// Load resolves exactly one source into a SourceImage. Resolution order is
// inline payload, object reference, then remote URL.
func (l *Loader) Load(ctx context.Context, src Source, opts Options) (*SourceImage, error) {
	opts = opts.withDefaults()

	var buf []byte
	var err error
	switch {
	case strings.HasPrefix(src.InlineDataURL, "data:image/"):
		buf, err = decodeDataURL(src.InlineDataURL)
	case strings.HasPrefix(src.ObjectURI, "gs://"):
		buf, err = l.fetchObject(ctx, src.ObjectURI)
	case src.RemoteURL != "":
		buf, err = l.fetchRemote(ctx, src.RemoteURL, opts)
	default:
		return nil, ErrMissingInput
	}
	if err != nil {
		return nil, err
	}

	img, err := decodeImage(buf)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Err: errors.New("zero-dimension image")}
	}

	// Send full detail to the model; only downscale truly giant pages.
	if b.Dx() > opts.MaxSide || b.Dy() > opts.MaxSide {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, opts.MaxSide, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, opts.MaxSide, imaging.Lanczos)
		}
		b = img.Bounds()
	}

	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&out, img); err != nil {
		return nil, &DecodeError{Err: err}
	}

	return &SourceImage{
		Image:  img,
		PNG:    out.Bytes(),
		B64:    base64.StdEncoding.EncodeToString(out.Bytes()),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func decodeDataURL(dataURL string) ([]byte, error) {
	_, b64, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, &DecodeError{Err: errors.New("malformed data URL")}
	}
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return buf, nil
}

func (l *Loader) fetchObject(ctx context.Context, uri string) ([]byte, error) {
	if l.store == nil {
		return nil, fmt.Errorf("object store not configured for %s", uri)
	}
	ref, err := storage.ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}
	return l.store.Fetch(ctx, ref)
}

// fetchRemote downloads a remote image with increasing backoff on transient
// network errors. When the URL matches the hosted download-URL shape and the
// direct fetch ultimately fails, the same object is resolved through the
// object store instead.
func (l *Loader) fetchRemote(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	var lastErr error
	for _, backoff := range fetchBackoff {
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &NetworkFetchError{URL: rawURL, Err: ctx.Err()}
			}
			l.log.Debug().Str("url", rawURL).Dur("backoff", backoff).Msg("retrying image fetch")
		}

		buf, err := l.fetchOnce(ctx, rawURL, opts)
		if err == nil {
			return buf, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}

	if ref, ok := storage.ParseDownloadURL(rawURL); ok && l.store != nil {
		l.log.Warn().Str("url", rawURL).Err(lastErr).Msg("direct fetch failed, falling back to object store")
		if buf, err := l.store.Fetch(ctx, ref); err == nil {
			return buf, nil
		}
	}
	return nil, &NetworkFetchError{URL: rawURL, Err: lastErr}
}

func (l *Loader) fetchOnce(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "curl/8.5 (+image-fetcher)")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "close")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http status %d for %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("response exceeds %d byte ceiling", opts.MaxBytes)
	}
	return data, nil
}

// isTransient classifies errors worth retrying: connection resets, timeouts,
// and exhausted DNS lookups. Status errors and everything else abort.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// decodeImage tries the registered stdlib decoders first, then the webp
// fallback decoder.
func decodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, errors.New("unknown or unsupported image format")
}
