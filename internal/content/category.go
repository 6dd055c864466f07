// Package content classifies upstream responses into the categories that
// drive per-type response handling.
package content

import (
	"path"
	"strings"
)

// Category is the classification of a response body.
type Category int

const (
	Other Category = iota
	HTML
	Script
	Stylesheet
	JSON
	Font
	Image
)

var categoryNames = [...]string{
	Other:      "other",
	HTML:       "html",
	Script:     "script",
	Stylesheet: "stylesheet",
	JSON:       "json",
	Font:       "font",
	Image:      "image",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// IsText reports whether the category's body is buffered and handled as text.
func (c Category) IsText() bool {
	switch c {
	case HTML, Script, Stylesheet, JSON:
		return true
	}
	return false
}

// Canonical content types forced onto text categories.
const (
	TypeHTML       = "text/html; charset=utf-8"
	TypeScript     = "application/javascript; charset=utf-8"
	TypeStylesheet = "text/css; charset=utf-8"
	TypeJSON       = "application/json; charset=utf-8"
)

// apiMarker is the path segment that identifies structured-data endpoints.
const apiMarker = "/api/"

// binaryTypes maps binary asset suffixes to their canonical MIME type.
var binaryTypes = map[string]struct {
	category Category
	mime     string
}{
	".woff":  {Font, "font/woff"},
	".woff2": {Font, "font/woff2"},
	".ttf":   {Font, "font/ttf"},
	".eot":   {Font, "application/vnd.ms-fontobject"},
	".otf":   {Font, "font/otf"},
	".png":   {Image, "image/png"},
	".jpg":   {Image, "image/jpeg"},
	".jpeg":  {Image, "image/jpeg"},
	".gif":   {Image, "image/gif"},
	".webp":  {Image, "image/webp"},
	".svg":   {Image, "image/svg+xml"},
	".ico":   {Image, "image/x-icon"},
}

// declaredTypes are matched as substrings of the declared Content-Type, in order.
var declaredTypes = []struct {
	marker   string
	category Category
}{
	{"text/html", HTML},
	{"javascript", Script},
	{"text/css", Stylesheet},
	{"application/json", JSON},
}

// Decision is the outcome of classifying one response.
type Decision struct {
	Category Category
	// ContentType is the type to force on the response, or empty to keep
	// whatever the upstream declared.
	ContentType string
}

// Classify computes the category once from the declared Content-Type and the
// request path. Font and image suffixes are authoritative because their MIME
// type is fixed per suffix; otherwise the declared type wins over path hints.
func Classify(declared, requestPath string) Decision {
	p := strings.ToLower(requestPath)
	if bt, ok := binaryTypes[path.Ext(p)]; ok {
		return Decision{Category: bt.category, ContentType: bt.mime}
	}

	ct := strings.ToLower(declared)
	for _, d := range declaredTypes {
		if strings.Contains(ct, d.marker) {
			return decisionFor(d.category)
		}
	}

	switch {
	case strings.HasSuffix(p, ".js"):
		return decisionFor(Script)
	case strings.HasSuffix(p, ".css"):
		return decisionFor(Stylesheet)
	case strings.Contains(p, apiMarker), strings.HasSuffix(p, ".json"):
		return decisionFor(JSON)
	}
	return Decision{Category: Other}
}

func decisionFor(c Category) Decision {
	switch c {
	case HTML:
		// HTML keeps the declared type; it is only defaulted when missing.
		return Decision{Category: HTML}
	case Script:
		return Decision{Category: Script, ContentType: TypeScript}
	case Stylesheet:
		return Decision{Category: Stylesheet, ContentType: TypeStylesheet}
	case JSON:
		return Decision{Category: JSON, ContentType: TypeJSON}
	}
	return Decision{Category: c}
}
