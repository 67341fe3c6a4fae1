// Package record holds the untyped rows read from import files.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the serialization a file was read from.
type Format string

const (
	// FormatTabular covers csv and xlsx: every value is a string and
	// relationships are comma-joined identifier lists.
	FormatTabular Format = "tabular"
	// FormatJSON values keep their JSON types; relationships are arrays of
	// {id} objects or plain id strings.
	FormatJSON Format = "json"
)

func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "tabular", "xlsx", "excel", "csv":
		return FormatTabular, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q", v)
	}
}

// RawRecord is one entity instance exactly as read from a file.
type RawRecord map[string]any

// OriginalID is the record's id column, trimmed.
func (r RawRecord) OriginalID() string {
	return strings.TrimSpace(Stringify(r["id"]))
}

// Has reports whether the field is present with a non-blank value.
func (r RawRecord) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func (r RawRecord) String(field string) string {
	return strings.TrimSpace(Stringify(r[field]))
}

// Columns lists the record's keys in no particular order.
func (r RawRecord) Columns() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

// Stringify renders a scalar cell value as text. Arrays and objects are
// rendered as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Tab is a named list of records, one sheet of a workbook or one key of a
// JSON export.
type Tab struct {
	Name    string
	Columns []string
	Records []RawRecord
}

// File is everything a format adapter read from one upload.
type File struct {
	Name   string
	Format Format
	Tabs   []Tab
}

func (f *File) RowCount() int {
	n := 0
	for _, t := range f.Tabs {
		n += len(t.Records)
	}
	return n
}
