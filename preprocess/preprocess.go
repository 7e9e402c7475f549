// Package preprocess normalizes demanda source text before block parsing.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// CleanBasic removes control characters, OCR artifacts and excess whitespace.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	// remove control chars except newline
	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	// fix common ligatures / OCR artifacts
	fixes := map[string]string{
		"ﬁ": "fi", "ﬂ": "fl",
		"—": "-", "–": "-",
		"·": ".", "•": "-",
	}
	for k, v := range fixes {
		b = strings.ReplaceAll(b, k, v)
	}

	// collapse spaces & tabs
	reSpaces := regexp.MustCompile(`[ \t]+`)
	b = reSpaces.ReplaceAllString(b, " ")

	// collapse multiple newlines to two
	reNewlines := regexp.MustCompile(`\n{3,}`)
	b = reNewlines.ReplaceAllString(b, "\n\n")

	return strings.TrimSpace(b)
}

// HTMLToText extracts readable text from an HTML demanda export, keeping the
// heading structure the block parser relies on.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			out = append(out, strings.ToUpper(text))
		case "li":
			out = append(out, "- "+text)
		default:
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n"), nil
}

// LooksLikeHTML reports whether the source text is an HTML document rather
// than plain text.
func LooksLikeHTML(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	return strings.HasPrefix(trimmed, "<!doctype html") ||
		strings.HasPrefix(trimmed, "<html") ||
		strings.Contains(trimmed, "</p>") ||
		strings.Contains(trimmed, "</div>")
}

// Normalize runs the full cleanup pipeline, extracting text first when the
// source is HTML.
func Normalize(raw string) string {
	if LooksLikeHTML(raw) {
		if text, err := HTMLToText(raw); err == nil {
			return CleanBasic(text)
		}
	}
	return CleanBasic(raw)
}
