package httpreq

import "errors"

// HTTP request errors.
var (
	// ErrInvalidURL is returned when the request URL cannot be parsed
	// or has no host.
	ErrInvalidURL = errors.New("invalid request URL")

	// ErrUnsupportedScheme is returned for URL schemes other than
	// http and https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrResponseTooLarge is returned when the response does not fit
	// the caller's limit. The response is never truncated; a partial
	// response is worse than a clean failure.
	ErrResponseTooLarge = errors.New("response exceeds caller limit")
)
