package parse

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

// Parser turns one source file into a Document.
type Parser interface {
	Parse(r io.Reader, path string) (*Document, error)
}

// ForFond returns the parser variant for f's schema. Unknown fonds fail
// closed rather than guessing a layout.
func ForFond(f fonds.Fond) (Parser, error) {
	switch f.Schema() {
	case fonds.SchemaJuri:
		return newJuriParser(f), nil
	case fonds.SchemaCnil:
		return newCnilParser(f), nil
	case fonds.SchemaLegiJorf:
		return newLegiJorfParser(f), nil
	default:
		return nil, fmt.Errorf("%w: no parser for fond %s", apperrors.ErrParse, f)
	}
}

// coreField identifies which Document field a tag feeds.
type coreField int

const (
	fieldUID coreField = iota
	fieldTitle
	fieldDate
	fieldContent
)

// schemaParser is the shared tag state machine: a flat walk over the XML
// token stream, routing character data by the innermost recognized tag.
// Nesting inside unrecognized tags is ignored, which tolerates the varying
// META wrapper depth across fonds.
type schemaParser struct {
	fond  fonds.Fond
	core  map[string]coreField
	extra map[string]string // tag -> extra key
}

func (p *schemaParser) Parse(r io.Reader, path string) (*Document, error) {
	doc := &Document{
		Fond:  p.fond,
		Path:  path,
		Extra: make(map[string]string),
	}
	var content strings.Builder

	dec := xml.NewDecoder(r)
	dec.Strict = false

	var current string // active recognized tag, "" when between them
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrParse, path, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if _, ok := p.core[name]; ok {
				current = name
			} else if _, ok := p.extra[name]; ok {
				current = name
			}
		case xml.EndElement:
			if t.Name.Local == current {
				current = ""
			}
		case xml.CharData:
			if current == "" {
				continue
			}
			text := string(t)
			if field, ok := p.core[current]; ok {
				switch field {
				case fieldUID:
					doc.UID = strings.TrimSpace(text)
				case fieldTitle:
					doc.Title = strings.TrimSpace(text)
				case fieldDate:
					doc.Date = strings.TrimSpace(text)
				case fieldContent:
					content.WriteString(text)
				}
				continue
			}
			key := p.extra[current]
			if v := strings.TrimSpace(text); v != "" {
				doc.Extra[key] = v
			}
		}
	}

	doc.Content = content.String()
	if doc.UID == "" {
		return nil, fmt.Errorf("%w: %s: missing document id", apperrors.ErrParse, path)
	}
	year, err := yearOf(doc.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrParse, path, err)
	}
	doc.Year = year
	return doc, nil
}

// yearOf extracts the leading 4-digit year from a date string. Anything
// past the year is not trusted.
func yearOf(date string) (int, error) {
	if len(date) < 4 {
		return 0, fmt.Errorf("no year in date %q", date)
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year < 1000 {
		return 0, fmt.Errorf("no year in date %q", date)
	}
	return year, nil
}
