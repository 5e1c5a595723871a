package kakao

import (
	"errors"
	"fmt"
)

// placeholderAPIKey is the value shipped in the sample .env file.
const placeholderAPIKey = "your_kakao_mobility_api_key_here"

var (
	// ErrAPIKeyNotSet is returned when no usable REST API key is configured.
	ErrAPIKeyNotSet = errors.New("kakao mobility api key is not set")
	// ErrAPIKeyInvalid is returned when the provider rejects the key (HTTP 401).
	ErrAPIKeyInvalid = errors.New("kakao mobility api key is invalid")
)

// TransportError wraps a failed exchange with the directions API: a non-2xx
// status or a network failure that survived the retries.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("kakao %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("kakao %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("kakao %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Body)
}
