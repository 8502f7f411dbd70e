package util

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrProviderUnavailable    = errors.New("provider unavailable")
	ErrInsufficientExtraction = errors.New("insufficient text extracted")
	ErrMalformedResponse      = errors.New("malformed provider response")
	ErrValidationFailed       = errors.New("validation failed")
	ErrTimeoutApproaching     = errors.New("processing budget nearly exhausted")
	ErrDownloadFailed         = errors.New("file download failed")
	ErrPersistenceFailed      = errors.New("persistence failed")
	ErrFileNotFound           = errors.New("file not found")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnsupportedFileType, "UNSUPPORTED_FILE_TYPE"},
	{ErrTimeoutApproaching, "TIMEOUT_APPROACHING"},
	{ErrInsufficientExtraction, "INSUFFICIENT_EXTRACTION"},
	{ErrMalformedResponse, "MALFORMED_RESPONSE"},
	{ErrValidationFailed, "VALIDATION_FAILED"},
	{ErrDownloadFailed, "DOWNLOAD_FAILED"},
	{ErrFileNotFound, "FILE_NOT_FOUND"},
	{ErrPersistenceFailed, "PERSISTENCE_FAILED"},
	{ErrProviderUnavailable, "PROVIDER_UNAVAILABLE"},
}

// ErrorCode maps an error onto the stable code stored on status records.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "CANCELLED"
	}
	return "PROCESSING_ERROR"
}

// IsRetryable reports whether running the same job again could succeed.
// Timeout-starved, unsupported and missing files are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTimeoutApproaching),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrFileNotFound):
		return false
	}
	return true
}

// Escalatable reports whether a stronger model or another attempt may fix err.
func Escalatable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrInsufficientExtraction) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrValidationFailed)
}
