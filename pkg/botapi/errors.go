package botapi

import (
	"errors"
	"fmt"

	ta "github.com/mymmrac/telego/telegoapi"
)

// Kind classifies a failed Bot API call.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindTimeout
	KindDecode
	KindRemote
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	case KindRemote:
		return "remote"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Client calls.
type Error struct {
	Kind   Kind
	Method string

	// StatusCode and Body are set for remote and malformed responses.
	StatusCode int
	Body       []byte

	// Code, Description and Parameters mirror an ok:false envelope.
	Code        int
	Description string
	Parameters  *ta.ResponseParameters

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	switch e.Kind {
	case KindRemote:
		return fmt.Sprintf("%s: telegram error %d: %s", e.Method, e.Code, e.Description)
	case KindMalformedResponse:
		return fmt.Sprintf("%s: malformed server response (status %d): %q", e.Method, e.StatusCode, previewBody(e.Body))
	case KindTimeout:
		if e.Err == nil {
			return fmt.Sprintf("%s: timeout", e.Method)
		}
	}

	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Method, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// RetryAfter reports the flood-control delay from a remote error, if any.
func (e *Error) RetryAfter() int {
	if e == nil || e.Parameters == nil {
		return 0
	}

	return e.Parameters.RetryAfter
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return KindUnknown
}

// IsTimeout reports whether err is a client-side deadline expiry.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

const bodyPreviewLimit = 512

func previewBody(body []byte) string {
	if len(body) <= bodyPreviewLimit {
		return string(body)
	}

	return string(body[:bodyPreviewLimit]) + "..."
}
