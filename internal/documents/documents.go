// Package documents turns uploaded files into plain-text documents and
// combines them into the corpus an import works on.
package documents

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// ErrUnsupported is returned for content that cannot be turned into text
var ErrUnsupported = errors.New("unsupported document type")

const (
	mimeHTML = "text/html"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// LoadFile reads and loads a document from disk
func LoadFile(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Load(filepath.Base(path), data)
}

// Load detects the content type of data and extracts its text.
// Markdown and plain text may start with a YAML frontmatter block whose
// string values end up in Meta; a "kind" key sets the document kind.
func Load(name string, data []byte) (*domain.Document, error) {
	doc := &domain.Document{
		ID:   uuid.NewString(),
		Name: name,
		Raw:  data,
		Meta: map[string]string{},
	}

	mt := mimetype.Detect(data)
	doc.MIME = mt.String()

	switch {
	case len(data) == 0:
		doc.MIME = "text/plain"
	case mt.Is(mimeXLSX) || strings.EqualFold(filepath.Ext(name), ".xlsx"):
		doc.MIME = mimeXLSX
		text, err := spreadsheetText(data)
		if err != nil {
			return nil, errors.Wrapf(err, "read spreadsheet %s", name)
		}
		doc.Text = text
	case mt.Is(mimeHTML):
		text, err := htmlText(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parse html %s", name)
		}
		doc.Text = text
	case strings.HasPrefix(mt.String(), "text/") || mt.Is("application/json"):
		meta, body, err := parseFrontmatter(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parse frontmatter %s", name)
		}
		doc.Meta = meta
		doc.Text = strings.TrimSpace(string(body))
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%s (%s)", name, mt.String())
	}

	doc.Kind = detectKind(name, doc.Meta)
	return doc, nil
}

// Combine joins document texts into one corpus, one "=== name ===" block
// per document with text. It returns an empty string when no document has
// text.
func Combine(docs []*domain.Document) string {
	var blocks []string
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("=== %s ===\n%s", d.Name, text))
	}
	return strings.Join(blocks, "\n\n")
}

// FindKind returns the documents of the given kind in input order
func FindKind(docs []*domain.Document, kind domain.DocumentKind) []*domain.Document {
	var out []*domain.Document
	for _, d := range docs {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func detectKind(name string, meta map[string]string) domain.DocumentKind {
	switch domain.DocumentKind(strings.ToLower(meta["kind"])) {
	case domain.KindEffort:
		return domain.KindEffort
	case domain.KindTimeline:
		return domain.KindTimeline
	case domain.KindGeneral:
		return domain.KindGeneral
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "effort"), strings.Contains(lower, "estimate"):
		return domain.KindEffort
	case strings.Contains(lower, "timeline"), strings.Contains(lower, "schedule"):
		return domain.KindTimeline
	default:
		return domain.KindGeneral
	}
}

// parseFrontmatter extracts a leading YAML block and returns its scalar
// values as strings together with the remaining content.
func parseFrontmatter(content []byte) (map[string]string, []byte, error) {
	meta := map[string]string{}
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return meta, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return meta, content, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(rest[:endIdx], &raw); err != nil {
		return nil, nil, err
	}
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any, nil:
			continue
		default:
			meta[k] = fmt.Sprint(v)
		}
	}

	return meta, bytes.TrimLeft(rest[endIdx+4:], "\n"), nil
}

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	doc.Find("title, h1, h2, h3, h4, h5, h6, p, li, td, th, pre").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li, td, th, pre").Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(lines, "\n"), nil
}

func spreadsheetText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", errors.Wrapf(err, "sheet %s", sheet)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n", sheet)
		for _, row := range rows {
			if line := strings.TrimSpace(strings.Join(row, " | ")); line != "" && strings.Trim(line, "| ") != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
