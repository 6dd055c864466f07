package handler

import (
	"strings"
	"testing"
	"time"
)

func TestDiagnostic_Render(t *testing.T) {
	d := diagnostic{
		Message:   `upstream request: dial tcp: connection refused`,
		Path:      "/search",
		TargetURL: "http://166.108.203.60:3000/search?q=<script>&x=1",
		Method:    "GET",
		Time:      time.Date(2024, 5, 1, 20, 30, 0, 0, time.FixedZone("CST", 8*3600)),
	}

	page := d.render()

	for _, want := range []string{
		"connection refused",
		"<code>/search</code>",
		"http://166.108.203.60:3000/search?q=&lt;script&gt;&amp;x=1",
		"<strong>Method:</strong> GET",
		"2024-05-01T12:30:00Z",
		"try again",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "<script>") {
		t.Error("page contains unescaped markup from the request")
	}
}
