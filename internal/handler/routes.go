package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ServicePrefix is the path prefix reserved for the proxy's own endpoints.
// Nothing under it is forwarded to the origin.
const ServicePrefix = "/_proxy"

// routedMethods are the methods echo's router dispatches for Any routes.
// Everything else (PURGE, MKCOL, LOCK, ...) is forwarded by forwardOtherMethods.
var routedMethods = map[string]bool{
	http.MethodConnect: true,
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
// It must run after the server middleware is installed: the method
// fallback it adds is the innermost middleware.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	svc := e.Group(ServicePrefix)
	svc.GET("/healthz", health.Healthz)
	svc.GET("/status", health.Status)
	svc.Any("/*", func(echo.Context) error { return echo.ErrNotFound })

	e.Any("/", proxy.Handle)
	e.Any("/*", proxy.Handle)
	e.Use(forwardOtherMethods(proxy))
}

// forwardOtherMethods sends requests whose method the router would answer
// with 405 straight to the proxy. Reserved paths are left to the router.
func forwardOtherMethods(proxy *ProxyHandler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if routedMethods[req.Method] || isReserved(req.URL.Path) {
				return next(c)
			}
			return proxy.Handle(c)
		}
	}
}

func isReserved(path string) bool {
	return path == ServicePrefix || strings.HasPrefix(path, ServicePrefix+"/")
}
