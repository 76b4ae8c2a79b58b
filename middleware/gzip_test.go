package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func xmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = io.WriteString(w, body)
	})
}

func TestGzip(t *testing.T) {
	large := "<Body>" + strings.Repeat("<Item>value</Item>", 200) + "</Body>"

	tests := []struct {
		name           string
		body           string
		acceptEncoding string
		wantGzip       bool
	}{
		{"large body", large, "gzip", true},
		{"small body", "<Body/>", "gzip", false},
		{"client without gzip", large, "", false},
	}

	mw, err := Gzip(0)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/soap", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			mw(xmlHandler(tt.body)).ServeHTTP(w, req)

			gotGzip := w.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("Content-Encoding = %q, want gzip=%v", w.Header().Get("Content-Encoding"), tt.wantGzip)
			}

			var r io.Reader = w.Body
			if gotGzip {
				zr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatal(err)
				}
				defer zr.Close()
				r = zr
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(got), len(tt.body))
			}
		})
	}
}
