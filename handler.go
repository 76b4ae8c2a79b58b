package soagw

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/gorilla/schema"
)

const (
	contentTypeXML  = "text/xml; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
)

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

// discoveryQuery holds the parameters of a GET request.
type discoveryQuery struct {
	WSDL string `schema:"wsdl"`
	XSD  string `schema:"xsd"`
}

// serveHTTP handles discovery (GET) and dispatch (POST) requests.
func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log().Error("PANIC recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			out, _ := Faultf(CodeServer, "PanicError : %v", rec).document().WriteToBytes()
			writeXML(w, out)
		}
	}()

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		g.serveDiscovery(w, r)
	case http.MethodPost:
		g.serveDispatch(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) serveDispatch(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if g.maxRequestBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, int64(g.maxRequestBodySize))
	}
	action := strings.ReplaceAll(r.Header.Get("SOAPAction"), `"`, "")
	ctx := withRequest(r.Context(), r)

	raw, err := io.ReadAll(body)
	if err != nil {
		d := g.newDispatch(action, raw, transportMetadata(r))
		ctx = d.start(ctx)
		writeXML(w, d.finish(ctx, nil, &Fault{Code: CodeClient, String: "MalformedEnvelope : " + err.Error()}, err))
		return
	}
	writeXML(w, g.dispatch(ctx, action, raw, transportMetadata(r)))
}

func (g *Gateway) serveDiscovery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var q discoveryQuery
	if err := queryDecoder.Decode(&q, query); err != nil {
		http.Error(w, "invalid query: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		doc string
		err error
	)
	switch {
	case query.Has("wsdl"):
		doc, err = g.Description(q.WSDL, endpointURL(r))
	case query.Has("xsd"):
		doc, err = g.Schema(q.XSD)
	default:
		g.serveIndex(w)
		return
	}
	if err != nil {
		g.log().Error("error creating document", slog.String("query", r.URL.RawQuery), slog.Any("error", err))
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnrecognizedOperation) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeXML(w, []byte(doc))
}

// serveIndex lists the registered operations with links to their WSDL.
func (g *Gateway) serveIndex(w http.ResponseWriter) {
	var b strings.Builder
	b.WriteString("<html><head><title>soagw</title></head><body><p>WSDLs :</p>")
	for _, name := range g.Operations() {
		fmt.Fprintf(&b, "<p><a href='?wsdl=%s'>%s</a></p>", url.QueryEscape(name), html.EscapeString(name))
	}
	b.WriteString("</body></html>")
	noCache(w)
	w.Header().Set("Content-Type", contentTypeHTML)
	_, _ = io.WriteString(w, b.String())
}

// endpointURL is the address clients use to reach the gateway: the request
// URL without its query.
func endpointURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	return u.String()
}

func transportMetadata(r *http.Request) map[string]string {
	md := map[string]string{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	}
	for _, h := range []string{"traceparent", "tracestate"} {
		if v := r.Header.Get(h); v != "" {
			md[h] = v
		}
	}
	return md
}

// writeXML writes an envelope or document. Faults are framed as successful
// HTTP responses; the outcome travels inside the envelope.
func writeXML(w http.ResponseWriter, b []byte) {
	noCache(w)
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Expires", "-1")
	w.Header().Set("Pragma", "no-cache")
}
