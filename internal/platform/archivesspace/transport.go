package archivesspace

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// accessLogTransport logs one debug line per backend request.
type accessLogTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func newAccessLogTransport(next http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &accessLogTransport{next: next, log: logger}
}

func (t *accessLogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.log.Debug("backend request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}
	t.log.Debug("backend request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))
	return resp, nil
}
