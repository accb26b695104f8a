// Package strategy implements the per-source extraction strategies and the
// candidate-ladder navigation they share.
package strategy

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldSpec declares how one field is pulled out of a selection: an ordered
// list of selector candidates tried in turn, an optional attribute to read
// instead of text content, and a default used when every candidate misses.
// Adding a source means adding a table of these, not new control flow.
type FieldSpec struct {
	Selectors []string
	Attr      string
	Default   string
}

// ExtractField resolves a FieldSpec against a selection. The first candidate
// that yields a non-empty value wins; a total miss degrades to the default.
func ExtractField(sel *goquery.Selection, spec FieldSpec) string {
	for _, candidate := range spec.Selectors {
		found := sel.Find(candidate).First()
		if found.Length() == 0 {
			continue
		}
		if spec.Attr != "" {
			if v, ok := found.Attr(spec.Attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
			continue
		}
		if text := strings.TrimSpace(found.Text()); text != "" {
			return text
		}
	}
	return spec.Default
}

// ExtractAttr reads an attribute from the selection itself (not a child),
// falling back through the listed attribute names.
func ExtractAttr(sel *goquery.Selection, attrs []string, def string) string {
	for _, attr := range attrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return def
}

// ParseCount turns loosely formatted counts ("1,234", "1.2k", "•", "") into
// integers, defaulting to zero on anything unparsable.
func ParseCount(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(strings.Fields(s)[0], "+")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f * multiplier)
}
