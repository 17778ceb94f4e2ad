package lifecycle

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	noteMarkedWithoutDate = "Marked as deprecated without specific date"
	noteNoExplicitDate    = "Deprecation mentioned without an explicit date"

	maxNoteLength = 200
)

var (
	versionHeaderTerms = []string{"version", "runtime", "dbr"}
	eolHeaderTerms     = []string{"eol", "end of life", "deprecation", "support end", "end of support"}
	deprecationTerms   = []string{"deprecat", "eol", "end of life", "end of support", "no longer supported"}
)

// extractionPass is one best-effort scan of a parsed documentation page.
type extractionPass func(root *html.Node, source Source, today time.Time, log logrus.FieldLogger) []DeprecationRecord

// extractionPasses run in order; earlier passes take precedence when merged.
var extractionPasses = []extractionPass{tablePass, textPass}

// ExtractDeprecations parses a documentation page and returns the deprecation
// records found in its tables and free-text blocks, in pass order.
func ExtractDeprecations(doc []byte, source Source, today time.Time, log logrus.FieldLogger) ([]DeprecationRecord, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse documentation page: %w", err)
	}
	var records []DeprecationRecord
	for _, pass := range extractionPasses {
		records = append(records, pass(root, source, today, log)...)
	}
	return records, nil
}

// tablePass reads tables whose header names both a version column and an end-of-life column.
func tablePass(root *html.Node, source Source, today time.Time, log logrus.FieldLogger) []DeprecationRecord {
	var records []DeprecationRecord
	for _, table := range findAll(root, func(n *html.Node) bool { return n.DataAtom == atom.Table }) {
		rows := findAll(table, func(n *html.Node) bool { return n.DataAtom == atom.Tr })

		headerIdx := -1
		var headers []string
		for i, row := range rows {
			if len(cells(row, atom.Th)) > 0 {
				headerIdx = i
				for _, th := range cells(row, atom.Th, atom.Td) {
					headers = append(headers, normalizeHeader(textOf(th)))
				}
				break
			}
		}
		if headerIdx < 0 {
			continue
		}

		eolCol := matchColumn(headers, eolHeaderTerms, -1)
		versionCol := matchColumn(headers, versionHeaderTerms, eolCol)
		if eolCol < 0 || versionCol < 0 {
			continue
		}

		for _, row := range rows[headerIdx+1:] {
			cols := cells(row, atom.Td, atom.Th)
			if len(cols) <= versionCol || len(cols) <= eolCol {
				continue
			}
			versionText := textOf(cols[versionCol])
			v, ok := ParseVersion(versionText)
			if !ok {
				log.Debugf("Skipping row without a runtime version: %q", versionText)
				continue
			}
			dateText := textOf(cols[eolCol])
			rec := DeprecationRecord{Version: v, Source: source}
			if d, ok := ParseDate(dateText); ok {
				rec.DeprecationDate = d.Format(DateLayout)
				rec.Note = "End of support from documentation: " + dateText
			} else if strings.Contains(strings.ToLower(dateText), "deprecated") {
				rec.DeprecationDate = today.Format(DateLayout)
				rec.Note = noteMarkedWithoutDate
			} else {
				log.Debugf("Skipping row for %s with unparseable date %q", v, dateText)
				continue
			}
			records = append(records, rec)
		}
	}
	return records
}

// textPass scans free-text blocks that mention deprecation together with a version.
func textPass(root *html.Node, source Source, today time.Time, log logrus.FieldLogger) []DeprecationRecord {
	var records []DeprecationRecord
	for _, block := range findAll(root, isTextBlock) {
		text := textOf(block)
		lower := strings.ToLower(text)
		if !containsAny(lower, deprecationTerms) {
			continue
		}
		v, ok := ParseVersion(text)
		if !ok {
			continue
		}
		rec := DeprecationRecord{Version: v, Source: source}
		if d, ok := ParseDate(text); ok {
			rec.DeprecationDate = d.Format(DateLayout)
			rec.Note = truncate(text, maxNoteLength)
		} else {
			rec.DeprecationDate = today.Format(DateLayout)
			rec.Note = noteNoExplicitDate
		}
		log.Debugf("Found deprecation mention for %s in text block", v)
		records = append(records, rec)
	}
	return records
}

func isTextBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Li, atom.Span, atom.Dd:
		return true
	case atom.Div:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isBlock(c) {
				return false
			}
		}
		return true
	}
	return false
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Div, atom.P, atom.Ul, atom.Ol, atom.Li, atom.Table, atom.Section, atom.Dl,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}

// normalizeHeader lowercases a header and turns '-' and '_' into spaces.
func normalizeHeader(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// matchColumn returns the first header containing any term, skipping index skip.
func matchColumn(headers, terms []string, skip int) int {
	for i, h := range headers {
		if i != skip && containsAny(h, terms) {
			return i
		}
	}
	return -1
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// findAll returns every descendant of n, in document order, that satisfies match.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// cells returns the direct children of row with one of the given element types.
func cells(row *html.Node, kinds ...atom.Atom) []*html.Node {
	var out []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, k := range kinds {
			if c.DataAtom == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// textOf returns the whitespace-collapsed text content of n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
