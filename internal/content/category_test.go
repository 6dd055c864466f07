package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		declared     string
		path         string
		wantCategory Category
		wantType     string
	}{
		{"declared html", "text/html; charset=utf-8", "/", HTML, ""},
		{"declared html on api path", "text/html", "/api/login", HTML, ""},
		{"declared javascript", "text/javascript", "/bundle", Script, TypeScript},
		{"application javascript", "application/javascript", "/x", Script, TypeScript},
		{"js suffix without type", "", "/assets/app.js", Script, TypeScript},
		{"js suffix with octet-stream", "application/octet-stream", "/assets/app.JS", Script, TypeScript},
		{"declared css", "text/css", "/theme", Stylesheet, TypeStylesheet},
		{"css suffix", "", "/assets/site.css", Stylesheet, TypeStylesheet},
		{"declared json", "application/json", "/status", JSON, TypeJSON},
		{"api marker", "text/plain", "/api/items", JSON, TypeJSON},
		{"json suffix", "", "/manifest.json", JSON, TypeJSON},
		{"declared json wins over js suffix", "application/json", "/config.js", JSON, TypeJSON},
		{"woff", "", "/font/a.woff", Font, "font/woff"},
		{"woff2 declared html", "text/html", "/font/a.woff2", Font, "font/woff2"},
		{"ttf", "application/octet-stream", "/f.ttf", Font, "font/ttf"},
		{"eot", "", "/f.eot", Font, "application/vnd.ms-fontobject"},
		{"otf", "", "/f.otf", Font, "font/otf"},
		{"png", "", "/logo.png", Image, "image/png"},
		{"jpg", "", "/a.jpg", Image, "image/jpeg"},
		{"jpeg upper", "", "/A.JPEG", Image, "image/jpeg"},
		{"gif", "", "/a.gif", Image, "image/gif"},
		{"webp", "", "/a.webp", Image, "image/webp"},
		{"svg", "text/xml", "/icons/a.svg", Image, "image/svg+xml"},
		{"ico", "", "/favicon.ico", Image, "image/x-icon"},
		{"other", "application/pdf", "/doc.pdf", Other, ""},
		{"nothing", "", "/download", Other, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.declared, tt.path)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantType, got.ContentType)
		})
	}
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "html", HTML.String())
	assert.Equal(t, "font", Font.String())
	assert.Equal(t, "other", Other.String())
	assert.Equal(t, "unknown", Category(42).String())
}

func TestCategory_IsText(t *testing.T) {
	for _, c := range []Category{HTML, Script, Stylesheet, JSON} {
		assert.True(t, c.IsText(), c.String())
	}
	for _, c := range []Category{Font, Image, Other} {
		assert.False(t, c.IsText(), c.String())
	}
}
