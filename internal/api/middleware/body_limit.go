// Package middleware provides request body size limiting for the mutating API surface.
package middleware

import "net/http"

// DefaultMaxBodyBytes bounds request bodies (connection/car/suite/test payloads, run-start
// bodies); none of this domain's request shapes are anywhere near this size legitimately.
const DefaultMaxBodyBytes = 512 * 1024

// MaxBodySize returns middleware that rejects request bodies larger than max bytes.
func MaxBodySize(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
