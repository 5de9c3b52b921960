package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/pkg/cropper"
	"github.com/menta2k/album-cataloger/pkg/detection"
	"github.com/menta2k/album-cataloger/pkg/loader"
	"github.com/menta2k/album-cataloger/pkg/types"
)

type stubRecognizer struct {
	detect      *types.PageItems
	refine      *types.PageItems
	detectErr   error
	refineErr   error
	detectCalls int
	refineCalls int
	lastCons    detection.Constraints
}

func (s *stubRecognizer) DetectItems(_ context.Context, _ string, w, h int, c detection.Constraints) (*types.PageItems, error) {
	s.detectCalls++
	s.lastCons = c
	if s.detectErr != nil {
		return nil, s.detectErr
	}
	if s.detect != nil {
		return s.detect, nil
	}
	return &types.PageItems{ImageDimensions: types.ImageDimensions{Width: w, Height: h}}, nil
}

func (s *stubRecognizer) RefineItems(_ context.Context, _ string, w, h int, _ *types.PageItems, _ detection.Constraints) (*types.PageItems, error) {
	s.refineCalls++
	if s.refineErr != nil {
		return nil, s.refineErr
	}
	if s.refine != nil {
		return s.refine, nil
	}
	return &types.PageItems{ImageDimensions: types.ImageDimensions{Width: w, Height: h}}, nil
}

func (s *stubRecognizer) Model() string { return "stub-model" }

func pageDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{200, 180, uint8(x % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func candidates(n int) []types.ItemCandidate {
	out := make([]types.ItemCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.ItemCandidate{
			ID:   "item-" + string(rune('a'+i)),
			Bbox: &types.BoundingBox{X: i * 60, Y: 10, Width: 50, Height: 50, Units: "pixels"},
		})
	}
	return out
}

func newFlow(t *testing.T, rec Recognizer) (*Flow, string) {
	t.Helper()
	dir := t.TempDir()
	l := loader.New(nil, zerolog.Nop())
	return New(l, rec, loader.Options{}, cropper.Config{OutputDir: dir}, Limits{}, zerolog.Nop()), dir
}

func TestProcessMissingInputBeforeAnyNetworkCall(t *testing.T) {
	rec := &stubRecognizer{}
	f, _ := newFlow(t, rec)

	_, err := f.Process(context.Background(), Request{})
	if !errors.Is(err, loader.ErrMissingInput) {
		t.Fatalf("got %v, want ErrMissingInput", err)
	}
	if rec.detectCalls != 0 || rec.refineCalls != 0 {
		t.Error("recognizer must not be called without an image source")
	}
}

func TestProcessHappyPath(t *testing.T) {
	rec := &stubRecognizer{
		detect: &types.PageItems{
			ImageDimensions: types.ImageDimensions{Width: 400, Height: 300},
			Items:           candidates(2),
		},
		refine: &types.PageItems{
			ImageDimensions: types.ImageDimensions{Width: 400, Height: 300},
			Items:           candidates(2),
		},
	}
	f, dir := newFlow(t, rec)

	resp, err := f.Process(context.Background(), Request{
		Source: loader.Source{InlineDataURL: pageDataURL(t, 400, 300)},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.ImageDimensions.Width != 400 || resp.ImageDimensions.Height != 300 {
		t.Errorf("dimensions %+v", resp.ImageDimensions)
	}
	if len(resp.Items) != 2 || len(resp.Crops) != 2 {
		t.Errorf("%d items, %d crops", len(resp.Items), len(resp.Crops))
	}
	if resp.ModelUsed != "stub-model" {
		t.Errorf("model %q", resp.ModelUsed)
	}
	if _, err := os.Stat(resp.ManifestPath); err != nil {
		t.Errorf("manifest missing: %v", err)
	}
	if filepath.Dir(resp.ManifestPath) != dir {
		t.Errorf("manifest outside output dir: %s", resp.ManifestPath)
	}
	if rec.detectCalls != 1 || rec.refineCalls != 1 {
		t.Errorf("detect=%d refine=%d, want one pass each", rec.detectCalls, rec.refineCalls)
	}
}

func TestProcessRefinementFallback(t *testing.T) {
	detected := candidates(3)
	rec := &stubRecognizer{
		detect: &types.PageItems{
			ImageDimensions: types.ImageDimensions{Width: 400, Height: 300},
			Items:           detected,
		},
		refine: &types.PageItems{
			ImageDimensions: types.ImageDimensions{Width: 400, Height: 300},
		},
	}
	f, _ := newFlow(t, rec)

	resp, err := f.Process(context.Background(), Request{
		Source: loader.Source{InlineDataURL: pageDataURL(t, 400, 300)},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("got %d items, want 3 from the detection pass", len(resp.Items))
	}
	for i, it := range resp.Items {
		want := "page-" + detected[i].ID
		if it.ID != want {
			t.Errorf("item %d id %q, want %q", i, it.ID, want)
		}
	}
}

func TestProcessDetectionErrorAborts(t *testing.T) {
	rec := &stubRecognizer{detectErr: &detection.EmptyError{Pass: "detection"}}
	f, dir := newFlow(t, rec)

	_, err := f.Process(context.Background(), Request{
		Source: loader.Source{InlineDataURL: pageDataURL(t, 100, 100)},
	})
	var emptyErr *detection.EmptyError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("got %v, want EmptyError", err)
	}
	if rec.refineCalls != 0 {
		t.Error("refinement must not run after a failed detection pass")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no partial output expected, found %d entries", len(entries))
	}
}

func TestProcessRefinementErrorAborts(t *testing.T) {
	rec := &stubRecognizer{
		detect: &types.PageItems{
			ImageDimensions: types.ImageDimensions{Width: 100, Height: 100},
			Items:           candidates(1),
		},
		refineErr: &detection.SchemaError{Pass: "refinement", Err: errors.New("bad json")},
	}
	f, dir := newFlow(t, rec)

	_, err := f.Process(context.Background(), Request{
		Source: loader.Source{InlineDataURL: pageDataURL(t, 100, 100)},
	})
	var schemaErr *detection.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("got %v, want SchemaError", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no partial output expected, found %d entries", len(entries))
	}
}

func TestConfiguredMaxItemsIsTheDefaultCap(t *testing.T) {
	rec := &stubRecognizer{}
	dir := t.TempDir()
	l := loader.New(nil, zerolog.Nop())
	f := New(l, rec, loader.Options{}, cropper.Config{OutputDir: dir}, Limits{MaxItems: 5}, zerolog.Nop())

	src := loader.Source{InlineDataURL: pageDataURL(t, 100, 100)}
	if _, err := f.Process(context.Background(), Request{Source: src}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.lastCons.MaxItems != 5 {
		t.Errorf("cap %d, want the configured default 5", rec.lastCons.MaxItems)
	}

	// An explicit request cap wins over the configured default.
	if _, err := f.Process(context.Background(), Request{Source: src, MaxItems: 3}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.lastCons.MaxItems != 3 {
		t.Errorf("cap %d, want the per-request value 3", rec.lastCons.MaxItems)
	}
}

func TestPageID(t *testing.T) {
	cases := []struct {
		src  loader.Source
		want string
	}{
		{loader.Source{ObjectURI: "gs://pages/albums/Page_07.png"}, "page-07-png"},
		{loader.Source{RemoteURL: "https://example.com/a/b/page9.jpg?tok=1"}, "page9-jpg"},
		{loader.Source{InlineDataURL: "data:image/png;base64,x"}, "page"},
	}
	for _, c := range cases {
		if got := pageID(c.src); got != c.want {
			t.Errorf("pageID(%+v) = %q, want %q", c.src, got, c.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{loader.ErrMissingInput, http.StatusBadRequest, CodeMissingInput},
		{&loader.DecodeError{Err: errors.New("x")}, http.StatusBadRequest, CodeDecodeFailed},
		{&loader.NetworkFetchError{URL: "u", Err: errors.New("x")}, http.StatusInternalServerError, CodeFetchFailed},
		{&detection.EmptyError{Pass: "detection"}, http.StatusInternalServerError, CodeDetectionEmpty},
		{&detection.SchemaError{Pass: "detection", Err: errors.New("x")}, http.StatusInternalServerError, CodeDetectionSchema},
		{&cropper.ManifestWriteError{Path: "p", Err: errors.New("x")}, http.StatusInternalServerError, CodeManifestWrite},
		{errors.New("anything else"), http.StatusInternalServerError, CodeInternal},
	}
	for _, c := range cases {
		status, code := Classify(c.err)
		if status != c.wantStatus || code != c.wantCode {
			t.Errorf("Classify(%v) = (%d, %s), want (%d, %s)", c.err, status, code, c.wantStatus, c.wantCode)
		}
	}
}
