// Package httpreq performs one-shot HTTP requests through circuits.
//
// A request opens a stream on the caller's circuit (plain for http,
// TLS for https), writes an HTTP/1.1 request with Connection: close,
// reads the entire response including headers, and tears the stream
// down before returning. The stream never escapes to the caller.
//
// There is deliberately no net/http client here: responses are returned
// as raw bytes, status line and headers included, because the boundary
// hands the wire-level response to callers who parse it themselves.
package httpreq
