package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultGzipMinSize is the smallest response body Gzip compresses.
const DefaultGzipMinSize = 1024

// Gzip returns an HTTP middleware that compresses XML and HTML responses
// of at least minSize bytes for clients that accept gzip. A minSize of 0
// selects DefaultGzipMinSize.
func Gzip(minSize int) (func(http.Handler) http.Handler, error) {
	if minSize <= 0 {
		minSize = DefaultGzipMinSize
	}
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(minSize),
		gzhttp.ContentTypes([]string{"text/xml", "text/html", "application/xml"}),
	)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}
