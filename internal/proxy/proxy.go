// Package proxy forwards gateway requests to resolved downstream endpoints
// and translates downstream failures into the uniform error contract.
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/models"
)

// hopHeaders are meaningful for a single transport hop only and must never
// be forwarded by a proxy.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// maxErrorBodySize bounds how much of a downstream error body is read for
// translation.
const maxErrorBodySize = 1 << 20

// downstreamError is the error body shape emitted by the backend services.
type downstreamError struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// Identity is the authenticated caller context stamped onto downstream
// requests. Zero fields are omitted from the forwarded headers.
type Identity struct {
	UserID string
	Role   string
}

// Forwarder sends requests to downstream services with sanitized headers
// and a bounded timeout, and writes the translated response.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

// NewForwarder builds a forwarder whose downstream calls are bounded by
// timeout. The inbound request context still applies, so a client
// disconnect cancels the in-flight downstream call.
func NewForwarder(timeout time.Duration, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Forward proxies r to endpoint and writes the downstream response (or the
// translated failure) to w. It returns the status code written.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, endpoint models.ServiceEndpoint, caller Identity) int {
	targetURL := endpoint.URL()
	if r.URL.RawQuery != "" {
		sep := "?"
		if strings.Contains(targetURL, "?") {
			sep = "&"
		}
		targetURL += sep + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), endpoint.Method().String(), targetURL, r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
		return http.StatusInternalServerError
	}

	out.Header = buildForwardHeaders(r, caller)

	resp, err := f.client.Do(out)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			// Client went away; nothing useful left to write.
			return http.StatusServiceUnavailable
		}
		f.logger.Warn("downstream call failed",
			zap.String("target", targetURL),
			zap.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "Service unavailable")
		return http.StatusServiceUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		f.writeDownstreamError(w, resp)
		return resp.StatusCode
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.Warn("response copy interrupted", zap.Error(err))
	}
	return resp.StatusCode
}

// writeDownstreamError re-emits a downstream HTTP error in the uniform
// envelope, preserving the status and any message/errors fields the
// downstream body carried.
func (f *Forwarder) writeDownstreamError(w http.ResponseWriter, resp *http.Response) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err == nil && len(body) > 0 {
		var de downstreamError
		if json.Unmarshal(body, &de) == nil && de.Message != "" {
			httputil.WriteError(w, resp.StatusCode, de.Message, de.Errors...)
			return
		}
	}
	httputil.WriteError(w, resp.StatusCode, "Service error")
}

// buildForwardHeaders copies the inbound headers minus the hop-by-hop set,
// then adds the forwarding headers.
func buildForwardHeaders(r *http.Request, caller Identity) http.Header {
	out := make(http.Header, len(r.Header))
	for key, values := range r.Header {
		for _, v := range values {
			out.Add(key, v)
		}
	}

	// Strip the fixed hop-by-hop set plus anything the inbound Connection
	// header nominated.
	for _, h := range hopHeaders {
		out.Del(h)
	}
	for _, nominated := range r.Header.Values("Connection") {
		for _, h := range strings.Split(nominated, ",") {
			if h = strings.TrimSpace(h); h != "" {
				out.Del(h)
			}
		}
	}

	out.Set("X-Forwarded-For", httputil.ClientIP(r))
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	out.Set("X-Forwarded-Proto", proto)
	out.Set("X-Forwarded-Host", r.Host)
	if caller.UserID != "" {
		out.Set("X-User-Id", caller.UserID)
	}
	if caller.Role != "" {
		out.Set("X-User-Role", caller.Role)
	}
	return out
}

func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
