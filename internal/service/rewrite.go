package service

import (
	"net/url"
	"regexp"
)

// linkRewriter turns absolute href/src references to the origin into
// root-relative paths so the caller never sees the upstream address.
type linkRewriter struct {
	re *regexp.Regexp
}

// newLinkRewriter matches href/src attributes with either quote style whose
// value starts with the origin (http, https or protocol-relative) followed by
// the base path. The trailing group requires a path, quote, query or fragment
// boundary so "origin:3000" never matches "origin:30001".
func newLinkRewriter(origin *url.URL) *linkRewriter {
	prefix := regexp.QuoteMeta(origin.Host + origin.Path)
	return &linkRewriter{
		re: regexp.MustCompile(`(?i)\b(href|src)(\s*=\s*)(["'])(?:https?:)?//` + prefix + `(?:/|(["'?#]))`),
	}
}

// Rewrite returns html with every matching reference made root-relative and
// the number of references rewritten.
func (r *linkRewriter) Rewrite(html string) (string, int) {
	n := 0
	out := r.re.ReplaceAllStringFunc(html, func(m string) string {
		n++
		return r.re.ReplaceAllString(m, "${1}${2}${3}/${4}")
	})
	return out, n
}
