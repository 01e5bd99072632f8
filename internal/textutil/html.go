// Package textutil turns HTML bodies and long strings into display text.
package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// MaxBodyText bounds extracted text, in bytes.
const MaxBodyText = 4 * 1024

// Tags to skip (non-content)
var skipTags = map[string]bool{
	"head": true, "title": true, "script": true, "style": true,
	"noscript": true, "iframe": true, "meta": true, "xml": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// LooksLikeHTML reports whether s appears to be an HTML document or fragment.
func LooksLikeHTML(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "<") &&
		(strings.Contains(s, "<html") || strings.Contains(s, "<body") ||
			strings.Contains(s, "<div") || strings.Contains(s, "<p") || strings.Contains(s, "<br"))
}

// HTMLToText returns the readable text of an HTML body. Block elements become
// line breaks; runs of blank lines collapse to one. Plain text is returned
// with whitespace normalized.
func HTMLToText(body string) string {
	if !LooksLikeHTML(body) {
		return Truncate(normalizeLines(body), MaxBodyText)
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.CommentNode {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	return Truncate(normalizeLines(sb.String()), MaxBodyText)
}

func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	var lines []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate shortens s to at most max bytes, ending in "..." when cut. It never
// splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// OneLine replaces newlines with spaces and truncates to max bytes.
func OneLine(s string, max int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), max)
}
