// Package httputil provides shared HTTP response/request utilities for the
// stub repository handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls. Successful bodies are wrapped in a
// {"data": ...} envelope and errors use ErrorResponse, which is the wire
// contract the segment REST client decodes.
package httputil
