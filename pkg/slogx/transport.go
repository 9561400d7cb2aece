package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/idx"
)

// RequestIDHeader carries the correlation id of an outgoing request.
const RequestIDHeader = "X-Request-ID"

// Transport wraps base so every outgoing request gets a request id and a log
// line. A nil base means http.DefaultTransport; a nil logger means the
// logger carried by the request context.
func Transport(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, logger: logger}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.logger
	if logger == nil {
		logger = FromContext(req.Context())
	}
	logger = logger.With(
		"req_id", reqID,
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_client_request", "error", err, "duration_ms", duration)
		return resp, err
	}

	logger.Debug("http_client_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
