package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const siteDateLayout = "2006-01-02"

// Columns a score table must have.
var requiredColumns = []string{"title", "difficulty", "score", "lamp"} //nolint:gochecknoglobals // fixed schema

// SiteHTML is a score table scraped from a saved profile page. Each row
// becomes a batch-manual row matched by song title.
type SiteHTML struct {
	rows []json.RawMessage
}

// ParseSiteHTML reads the first table.scores in r. Header cells name the
// columns; order does not matter.
func ParseSiteHTML(r io.Reader) (*SiteHTML, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	table := doc.Find("table.scores").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: no score table", ErrInvalidDocument)
	}

	cols := map[string]int{}
	table.Find("thead th, tr:first-child th").Each(func(i int, th *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(th.Text()))
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	})
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidDocument, c)
		}
	}

	s := &SiteHTML{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		s.rows = append(s.rows, siteRow(cell))
	})
	return s, nil
}

// siteRow builds a batch-manual row. Values that do not parse are passed
// through as strings so the converter reports them as invalid.
func siteRow(cell func(string) string) json.RawMessage {
	row := map[string]any{
		"matchType":  "songTitle",
		"identifier": cell("title"),
		"difficulty": strings.ToUpper(cell("difficulty")),
		"lamp":       strings.ToUpper(cell("lamp")),
	}
	raw := strings.ReplaceAll(cell("score"), ",", "")
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		row["score"] = v
	} else {
		row["score"] = raw
	}
	if d := cell("date"); d != "" {
		if t, err := time.Parse(siteDateLayout, d); err == nil {
			row["timeAchieved"] = t.UnixMilli()
		}
	}
	if c := cell("comment"); c != "" {
		row["comment"] = c
	}
	out, _ := json.Marshal(row) //nolint:errchkjson // plain map of strings and numbers
	return out
}

// Len returns the number of rows.
func (s *SiteHTML) Len() int { return len(s.rows) }

// Records yields every row in table order.
func (s *SiteHTML) Records() iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for _, r := range s.rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}
