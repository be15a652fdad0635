package httpclient

import "errors"

// Errors returned by Request. This is a closed taxonomy: every failure the
// primitive can produce maps to exactly one of these.
var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrNoHost        = errors.New("url has no host")
	ErrRequestFailed = errors.New("failed to build request")
	ErrSendFailed    = errors.New("failed to send request")
	ErrReceiveFailed = errors.New("failed to receive response")
	ErrReadFailed    = errors.New("failed to read response body")
	ErrTimeout       = errors.New("request timed out")
)
