// Package formats reads and writes the files users exchange with the
// transfer engine: xlsx workbooks with one sheet per entity type, single
// csv sheets, and JSON.
package formats

import (
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeJSON = "application/json"
	mimeCSV  = "text/csv"
)

// ParseKind accepts a kind name or a file extension.
func ParseKind(v string) (Kind, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), ".") {
	case "xlsx", "excel":
		return KindXLSX, nil
	case "csv":
		return KindCSV, nil
	case "json":
		return KindJSON, nil
	}
	return "", errors.Wrapf(ErrUnsupportedFormat, "%q", v)
}

func (k Kind) Format() record.Format {
	if k == KindJSON {
		return record.FormatJSON
	}
	return record.FormatTabular
}

func (k Kind) ContentType() string {
	switch k {
	case KindXLSX:
		return mimeXLSX
	case KindJSON:
		return mimeJSON
	default:
		return mimeCSV
	}
}

// Detect sniffs the content first and falls back to the file extension.
func Detect(b []byte, filename string) (Kind, error) {
	m := mimetype.Detect(b)
	switch {
	case m.Is(mimeXLSX):
		return KindXLSX, nil
	case m.Is(mimeJSON):
		return KindJSON, nil
	case m.Is(mimeCSV):
		return KindCSV, nil
	}
	if ext := filepath.Ext(filename); ext != "" {
		if k, err := ParseKind(ext); err == nil {
			return k, nil
		}
	}
	return "", errors.Wrapf(ErrUnsupportedFormat, "%s (%s)", filename, m.String())
}

// Parse reads a whole upload and dispatches on its detected kind.
func Parse(r io.Reader, filename string) (*record.File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	kind, err := Detect(b, filename)
	if err != nil {
		return nil, err
	}
	var f *record.File
	switch kind {
	case KindXLSX:
		f, err = ParseTabularMultiTab(bytes.NewReader(b))
	case KindJSON:
		f, err = ParseJSON(bytes.NewReader(b))
	default:
		f, err = ParseCSV(bytes.NewReader(b), tabFromFilename(filename))
	}
	if err != nil {
		return nil, err
	}
	f.Name = filepath.Base(filename)
	return f, nil
}

// Write serializes f in the given kind. A csv file holds the first tab only.
func Write(w io.Writer, f *record.File, kind Kind) error {
	switch kind {
	case KindXLSX:
		return WriteXLSX(w, f)
	case KindJSON:
		return WriteJSON(w, f)
	case KindCSV:
		if len(f.Tabs) == 0 {
			return WriteCSV(w, record.Tab{})
		}
		return WriteCSV(w, f.Tabs[0])
	}
	return errors.Wrapf(ErrUnsupportedFormat, "%q", kind)
}

func tabFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// columnsOf returns the tab's declared columns, or the union of the record
// keys in first-seen order.
func columnsOf(t record.Tab) []string {
	if len(t.Columns) > 0 {
		return t.Columns
	}
	seen := map[string]bool{}
	var cols []string
	for _, rec := range t.Records {
		keys := rec.Columns()
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
