package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Route maps one inbound API route onto an upstream path template.
// Target segments of the form ":name" are filled from the route parameter
// of the same name.
type Route struct {
	Method string
	Path   string
	Target string
}

// Routes is the fixed set of proxied API routes.
var Routes = []Route{
	{http.MethodGet, "/api/orders", "/orders"},
	{http.MethodPost, "/api/orders", "/orders"},
	{http.MethodGet, "/api/orders/:id", "/orders/:id"},
	{http.MethodPatch, "/api/orders/:id/progress", "/orders/:id/progress"},
	{http.MethodPost, "/api/orders/:id/start", "/orders/:id/start"},

	{http.MethodGet, "/api/services", "/services"},
	{http.MethodPost, "/api/services", "/services"},
	{http.MethodGet, "/api/services/:id", "/services/:id"},
	{http.MethodPatch, "/api/services/:id/toggle", "/services/:id/toggle"},
	{http.MethodDelete, "/api/services/:id", "/services/:id"},

	{http.MethodGet, "/api/notifications", "/notifications"},
	{http.MethodGet, "/api/notifications/unread-count", "/notifications/unread-count"},
	{http.MethodPatch, "/api/notifications/:id/read", "/notifications/:id/read"},
	{http.MethodPatch, "/api/notifications/read-all", "/notifications/read-all"},

	{http.MethodPatch, "/api/chat/:chatId/read", "/chat/:chatId/read"},

	{http.MethodPost, "/api/admin/payouts/:id/approve", "/admin/payouts/:id/approve"},
	{http.MethodPost, "/api/admin/payouts/:id/reject", "/admin/payouts/:id/reject"},
	{http.MethodGet, "/api/admin/dashboard/stats", "/admin/dashboard/stats"},
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	for _, rt := range Routes {
		e.Add(rt.Method, rt.Path, proxy.For(rt))
	}
}
