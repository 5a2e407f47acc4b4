package assets

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
)

// A webfont directive is a CSS comment naming a stylesheet to inline:
//
//	/* @webfont https://fonts.example.com/css?family=Inter */
var directiveRe = regexp.MustCompile(`/\*\s*@webfont\s+(\S+)\s*\*/`)

var cssURLRe = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)

// Directives returns the stylesheet URLs named by webfont directives in css,
// in order of appearance, without duplicates.
func Directives(css []byte) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range directiveRe.FindAllSubmatch(css, -1) {
		u := string(m[1])
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// ReplaceDirectives substitutes every webfont directive in css with the text
// returned by inline. Errors from inline are collected and returned after
// all directives were visited.
func ReplaceDirectives(css []byte, inline func(sheetURL string) ([]byte, error)) ([]byte, error) {
	var firstErr error
	out := directiveRe.ReplaceAllFunc(css, func(m []byte) []byte {
		sub := directiveRe.FindSubmatch(m)
		text, err := inline(string(sub[1]))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		return text
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// FontURLs returns the absolute URLs of every url(...) in a stylesheet
// fetched from base. Data URIs are skipped.
func FontURLs(sheet []byte, base string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range cssURLRe.FindAllSubmatch(sheet, -1) {
		abs, ok := resolveURL(base, firstGroup(m))
		if !ok || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

// RewriteFontURLs replaces every url(...) in a stylesheet fetched from base
// with url("<local>") where local is returned by rename. URLs rename rejects
// are left untouched.
func RewriteFontURLs(sheet []byte, base string, rename func(abs string) (string, bool)) []byte {
	return cssURLRe.ReplaceAllFunc(sheet, func(m []byte) []byte {
		sub := cssURLRe.FindSubmatch(m)
		abs, ok := resolveURL(base, firstGroup(sub))
		if !ok {
			return m
		}
		local, ok := rename(abs)
		if !ok {
			return m
		}
		var b bytes.Buffer
		b.WriteString(`url("`)
		b.WriteString(local)
		b.WriteString(`")`)
		return b.Bytes()
	})
}

// ImportRule is the fallback for a stylesheet that could not be inlined.
func ImportRule(sheetURL string) []byte {
	return []byte(`@import url("` + sheetURL + `");`)
}

func firstGroup(m [][]byte) string {
	for _, g := range m[1:] {
		if len(g) > 0 {
			return strings.TrimSpace(string(g))
		}
	}
	return ""
}

func resolveURL(base, ref string) (string, bool) {
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(r).String(), true
}
