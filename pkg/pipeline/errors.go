package pipeline

import (
	"errors"
	"net/http"

	"github.com/menta2k/album-cataloger/pkg/cropper"
	"github.com/menta2k/album-cataloger/pkg/detection"
	"github.com/menta2k/album-cataloger/pkg/loader"
)

// Error codes reported alongside failures. Clients get a code and message,
// never a stack trace.
const (
	CodeMissingInput    = "missing_input"
	CodeDecodeFailed    = "decode_failed"
	CodeFetchFailed     = "fetch_failed"
	CodeDetectionEmpty  = "detection_empty"
	CodeDetectionSchema = "detection_schema"
	CodeManifestWrite   = "manifest_write"
	CodeInternal        = "internal"
)

// Classify maps a flow error onto an HTTP status and a stable error code.
// Input validation and decode problems are client faults; everything past
// the loader is a server fault.
func Classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, loader.ErrMissingInput):
		return http.StatusBadRequest, CodeMissingInput
	case isA[*loader.DecodeError](err):
		return http.StatusBadRequest, CodeDecodeFailed
	case isA[*loader.NetworkFetchError](err):
		return http.StatusInternalServerError, CodeFetchFailed
	case isA[*detection.EmptyError](err):
		return http.StatusInternalServerError, CodeDetectionEmpty
	case isA[*detection.SchemaError](err):
		return http.StatusInternalServerError, CodeDetectionSchema
	case isA[*cropper.ManifestWriteError](err):
		return http.StatusInternalServerError, CodeManifestWrite
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
