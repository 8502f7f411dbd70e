package providers

import (
	"fmt"
	"strings"

	"labflow/internal/util"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"), strings.Contains(e, "overloaded"):
		return ErrorRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"), strings.Contains(e, "too large"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, " 500"), strings.Contains(e, " 502"), strings.Contains(e, " 503"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// HTTPError is a non-2xx vendor response. It unwraps to util.ErrProviderUnavailable.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.Status, body)
}

func (e *HTTPError) Unwrap() error {
	return util.ErrProviderUnavailable
}
