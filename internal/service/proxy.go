// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"marketplace-gateway/internal/client"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/metrics"
	"marketplace-gateway/internal/model"
)

var (
	// ErrMissingToken is returned when the request carries no usable bearer token.
	ErrMissingToken = errors.New("bearer token required")

	// ErrMalformedBody is returned when a create/update body is present but is not JSON.
	ErrMalformedBody = errors.New("request body is not valid JSON")

	// ErrUpstreamNotJSON is returned when a successful upstream response is not JSON.
	ErrUpstreamNotJSON = errors.New("upstream returned a non-JSON body")
)

// strippedRequestHeaders never reach the upstream. Cookies stay on the
// browser side of the gateway; the rest are hop-by-hop or recomputed.
var strippedRequestHeaders = []string{
	"Cookie",
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
	"Accept-Encoding",
}

// forwardableResponseHeaders are the only upstream response headers relayed
// to the caller; the relayed body is always re-encoded as JSON by the handler.
var forwardableResponseHeaders = map[string]bool{
	"Cache-Control":    true,
	"Etag":             true,
	"Last-Modified":    true,
	"Location":         true,
	"Www-Authenticate": true,
}

const userAgent = "marketplace-gateway/1.0"

// ProxyService relays inbound calls to the upstream backend.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseURL *url.URL
}

// NewProxyService creates a ProxyService targeting cfg.Upstream.BaseURL.
// The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q must be absolute", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
		baseURL: u,
	}, nil
}

// Forward sends a ProxyRequest to the upstream and returns the response to relay.
// The upstream is contacted at most once, and never when the bearer token is
// missing or a body that should be JSON is not.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if bearerToken(pr.Header) == "" {
		return nil, ErrMissingToken
	}

	body, err := requestBody(pr.Method, pr.Body)
	if err != nil {
		return nil, err
	}

	upstreamURL := s.buildUpstreamURL(pr.Method, pr.TargetPath, pr.RawQuery)
	header := s.filterRequestHeaders(pr.Header, pr.ClientIP)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", pr.TargetPath,
	)

	resp, err := s.client.Send(pr.Ctx, pr.Method, upstreamURL, header, body)
	if err != nil {
		err = fmt.Errorf("forward to upstream: %w", err)
		s.recordFailure(err)
		return nil, err
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	if err := normalizeBody(resp); err != nil {
		s.recordFailure(err)
		return nil, err
	}
	return resp, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header http.Header) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requestBody returns the bytes to forward for method, or nil for none.
func requestBody(method string, raw []byte) ([]byte, error) {
	if !carriesBody(method) || len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, ErrMalformedBody
	}
	return raw, nil
}

func carriesBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead && method != http.MethodDelete
}

func (s *ProxyService) buildUpstreamURL(method, targetPath, rawQuery string) string {
	u := *s.baseURL

	// targetPath arrives escaped; keep that encoding so an escaped "/" inside
	// a path parameter stays a single segment.
	escaped := strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + targetPath
	if p, err := url.PathUnescape(escaped); err == nil {
		u.Path, u.RawPath = p, escaped
	} else {
		u.Path, u.RawPath = strings.TrimSuffix(s.baseURL.Path, "/")+targetPath, ""
	}

	u.RawQuery = ""
	if method == http.MethodGet {
		u.RawQuery = rawQuery
	}
	return u.String()
}

func (s *ProxyService) filterRequestHeaders(src http.Header, clientIP string) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	// Headers named by Connection are hop-by-hop as well.
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, key := range strippedRequestHeaders {
		dst.Del(key)
	}

	if clientIP != "" {
		if prior := dst.Values("X-Forwarded-For"); len(prior) > 0 {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		dst.Set("X-Forwarded-For", clientIP)
	}

	dst.Set("Content-Type", "application/json")
	dst.Set("Accept-Encoding", client.AcceptEncoding)
	dst.Set("User-Agent", userAgent)
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}

// normalizeBody makes resp.Body a JSON document fit to relay. Error statuses
// with an unusable body get a synthetic message; a success status with a
// non-JSON body is an error.
func normalizeBody(resp *model.ProxyResponse) error {
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		resp.Body = nil
		return nil
	}

	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		resp.Body = trimmed
		return nil
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch {
	case success && len(trimmed) == 0:
		resp.Body = []byte("{}")
	case success:
		return fmt.Errorf("%w: status %d", ErrUpstreamNotJSON, resp.StatusCode)
	default:
		msg, _ := json.Marshal(map[string]string{"message": statusText(resp.StatusCode)})
		resp.Body = msg
	}
	return nil
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("Upstream error %d", code)
}

func (s *ProxyService) recordFailure(err error) {
	if s.metrics != nil {
		s.metrics.UpstreamFailures.WithLabelValues(FailureReason(err)).Inc()
	}
}

// FailureReason classifies a forwarding error into a bounded label.
func FailureReason(err error) string {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
	)

	switch {
	case errors.Is(err, ErrUpstreamNotJSON):
		return "non_json"
	case errors.Is(err, client.ErrResponseTooLarge):
		return "too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr):
		return "connection"
	default:
		return "other"
	}
}
