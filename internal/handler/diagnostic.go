package handler

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// diagnostic is the content of the page served when a request cannot be proxied.
type diagnostic struct {
	Message   string
	Path      string
	TargetURL string
	Method    string
	Time      time.Time
}

const diagnosticPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Proxy request failed</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body { font-family: system-ui, sans-serif; padding: 2rem; max-width: 800px; margin: 0 auto; }
    .error { background: #fff0f0; border: 1px solid #ffccc7; padding: 1rem; border-radius: 4px; }
    .details { margin-top: 1rem; background: #f5f5f5; padding: 1rem; border-radius: 4px; }
    code { font-family: monospace; background: #f0f0f0; padding: 0.2em 0.4em; border-radius: 3px; }
  </style>
</head>
<body>
  <h1>Proxy request failed</h1>
  <div class="error">
    <p><strong>Error:</strong> %s</p>
  </div>
  <div class="details">
    <p><strong>Path:</strong> <code>%s</code></p>
    <p><strong>Target URL:</strong> <code>%s</code></p>
    <p><strong>Method:</strong> %s</p>
    <p><strong>Time:</strong> %s</p>
  </div>
  <p>Refresh the page to try again, or contact the site administrator.</p>
</body>
</html>
`

// render never fails: it is plain interpolation of escaped strings.
func (d diagnostic) render() string {
	return fmt.Sprintf(diagnosticPage,
		html.EscapeString(d.Message),
		html.EscapeString(d.Path),
		html.EscapeString(d.TargetURL),
		html.EscapeString(d.Method),
		d.Time.UTC().Format(time.RFC3339),
	)
}

func writeDiagnostic(c echo.Context, d diagnostic) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	return c.HTML(http.StatusInternalServerError, d.render())
}
