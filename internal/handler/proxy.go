package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/service"
)

// tokenQueryPattern matches token-like query parameter values in URLs embedded in error messages.
var tokenQueryPattern = regexp.MustCompile(`(?i)((?:access_)?token=)[^&\s"]+`)

// ProxyHandler forwards API requests to the upstream backend.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// For returns the echo handler that proxies calls matching rt.
func (h *ProxyHandler) For(rt Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Unreadable request body",
			})
		}

		header := req.Header.Clone()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			header.Set(echo.HeaderXRequestID, id)
		}

		pr := &model.ProxyRequest{
			Ctx:        req.Context(),
			Method:     rt.Method,
			TargetPath: expandTarget(rt.Target, c),
			RawQuery:   req.URL.RawQuery,
			Header:     header,
			Body:       body,
			ClientIP:   peerIP(req),
		}

		resp, err := h.service.Forward(pr)
		if err != nil {
			return h.mapError(c, err)
		}

		for key, vals := range resp.Header {
			for _, v := range vals {
				c.Response().Header().Add(key, v)
			}
		}

		if len(resp.Body) == 0 {
			return c.NoContent(resp.StatusCode)
		}
		return c.JSONBlob(resp.StatusCode, resp.Body)
	}
}

// peerIP is the address of the connection that delivered req, which is the
// hop this gateway adds to X-Forwarded-For. Client-supplied forwarding headers
// never affect it.
var peerIP = echo.ExtractIPDirect()

// expandTarget substitutes ":name" segments of an upstream path template with
// the matching, path-escaped route parameters.
func expandTarget(target string, c echo.Context) string {
	segments := strings.Split(target, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			segments[i] = url.PathEscape(c.Param(seg[1:]))
		}
	}
	return strings.Join(segments, "/")
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, service.ErrMissingToken):
		h.logger.Warn("rejected request", "reason", "missing_token", "path", path)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})

	case errors.Is(err, service.ErrMalformedBody):
		h.logger.Warn("rejected request", "reason", "malformed_body", "path", path)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid JSON body",
		})
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"reason", service.FailureReason(err),
		"path", path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "Internal server error",
	})
}

// sanitizeError redacts token query parameters from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return tokenQueryPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
