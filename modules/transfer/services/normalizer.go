package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// idempotencyNamespace seeds the per row idempotency keys.
var idempotencyNamespace = uuid.MustParse("6f0f4b52-8a51-4f6e-9c55-3c2b7d1e0a94")

const descriptionNameRunes = 50

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
}

// NormalizedInput is a row in the shape the store's create/update accepts.
// Relationship values are kept aside, untouched, for the second pass.
type NormalizedInput struct {
	OriginalID     string
	Fields         map[string]any
	Deferred       map[string]any
	IdempotencyKey string
	// Notes lists the fallbacks applied, for logging.
	Notes []string
}

type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

func (n *Normalizer) Normalize(rec record.RawRecord, t schema.EntityType, format record.Format) (NormalizedInput, error) {
	s, ok := schema.Of(t)
	if !ok {
		return NormalizedInput{}, errors.Wrapf(ErrUnknownEntityType, "%q", t)
	}
	out := NormalizedInput{
		OriginalID:     rec.OriginalID(),
		Fields:         map[string]any{},
		Deferred:       map[string]any{},
		IdempotencyKey: idempotencyKey(t, rec),
	}
	for field, raw := range rec {
		switch s.Kind(field) {
		case schema.KindID, schema.KindUnknown:
		case schema.KindRelationship:
			if rec.Has(field) {
				out.Deferred[field] = raw
			}
		case schema.KindString:
			if v := strings.TrimSpace(record.Stringify(raw)); v != "" {
				out.Fields[field] = v
			}
		case schema.KindNumber:
			if v, ok := parseNumber(raw); ok {
				out.Fields[field] = v
			} else if rec.Has(field) {
				out.Notes = append(out.Notes, fmt.Sprintf("%s: %q is not a number, left unset", field, record.Stringify(raw)))
			}
		case schema.KindDate:
			if v, ok := parseDate(raw); ok {
				out.Fields[field] = v
			} else if rec.Has(field) {
				out.Notes = append(out.Notes, fmt.Sprintf("%s: %q is not a date, left unset", field, record.Stringify(raw)))
			}
		case schema.KindBoolean:
			if v, ok := parseBool(raw); ok {
				out.Fields[field] = v
			}
		case schema.KindArray:
			if v := stringList(raw, format); len(v) > 0 {
				out.Fields[field] = v
			}
		case schema.KindDocument:
			if v, ok := documentString(raw); ok {
				out.Fields[field] = v
			}
		case schema.KindEnum:
		}
	}
	for field, enum := range s.Enums {
		v, applied := coerceEnum(rec[field], enum)
		out.Fields[field] = v
		if applied && rec.Has(field) {
			out.Notes = append(out.Notes, fmt.Sprintf("%s: %q is not one of %v, using %s", field, record.Stringify(rec[field]), enum.Values, enum.Default))
		}
	}
	n.fillName(s, rec, &out)
	return out, nil
}

func idempotencyKey(t schema.EntityType, rec record.RawRecord) string {
	// json.Marshal sorts map keys, which makes the encoding canonical.
	b, err := json.Marshal(rec)
	if err != nil {
		b = []byte(fmt.Sprint(rec))
	}
	data := make([]byte, 0, len(b)+64)
	data = append(data, t...)
	data = append(data, '|')
	data = append(data, rec.OriginalID()...)
	data = append(data, '|')
	data = append(data, b...)
	return uuid.NewSHA1(idempotencyNamespace, data).String()
}

// positionedKey ties a row key to the row's place in the file. Re-running the
// same file yields the same keys, and identical rows no longer share one.
func positionedKey(key, tab string, row int) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(key+"|"+tab+"|"+strconv.Itoa(row))).String()
}

func (n *Normalizer) fillName(s *schema.Schema, rec record.RawRecord, out *NormalizedInput) {
	if s.NameRule == schema.NameRulePerson {
		fillPersonName(rec, out)
	}
	if _, ok := out.Fields[s.NameField]; ok {
		return
	}
	label := s.Label
	if label == "" {
		label = string(s.Type)
	}
	var name string
	switch desc := rec.String("description"); {
	case out.OriginalID != "":
		name = label + " " + out.OriginalID
	case desc != "":
		name = truncateRunes(desc, descriptionNameRunes)
	default:
		name = label + " " + n.now().UTC().Format("2006-01-02 15:04:05")
	}
	out.Fields[s.NameField] = name
	out.Notes = append(out.Notes, fmt.Sprintf("%s was blank, using %q", s.NameField, name))
}

// fillPersonName accepts firstName/lastName, a combined name column or,
// as a last resort, the local part of the email address.
func fillPersonName(rec record.RawRecord, out *NormalizedInput) {
	_, hasFirst := out.Fields["firstName"]
	_, hasLast := out.Fields["lastName"]
	if hasFirst || hasLast {
		return
	}
	first, last := splitName(rec.String("name"))
	if last == "" {
		if email := rec.String("email"); email != "" {
			local, _, _ := strings.Cut(email, "@")
			first, last = splitName(strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local))
			title := cases.Title(language.Und)
			first, last = title.String(first), title.String(last)
			if last != "" {
				out.Notes = append(out.Notes, fmt.Sprintf("name derived from email %q", email))
			}
		}
	}
	if first != "" {
		out.Fields["firstName"] = first
	}
	if last != "" {
		out.Fields["lastName"] = last
	}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "..."
}

// coerceEnum upper-cases v and checks it against the members. It reports
// whether the default was used.
func coerceEnum(v any, e schema.Enum) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(record.Stringify(v)))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if s != "" && e.Contains(s) {
		return s, false
	}
	return e.Default, true
}

func parseNumber(v any) (any, bool) {
	var d decimal.Decimal
	var err error
	switch x := v.(type) {
	case nil:
		return nil, false
	case float64:
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	default:
		s := strings.TrimSpace(record.Stringify(x))
		if s == "" {
			return nil, false
		}
		if !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		d, err = decimal.NewFromString(s)
		if err != nil {
			return nil, false
		}
	}
	if d.IsInteger() {
		return d.IntPart(), true
	}
	return d.InexactFloat64(), true
}

func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x.UTC(), !x.IsZero()
	case float64:
		return excelSerial(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return excelSerial(f)
		}
		return time.Time{}, false
	}
	s := strings.TrimSpace(record.Stringify(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// xlsx date cells read without a number format
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return excelSerial(f)
	}
	return time.Time{}, false
}

// maxExcelSerial is 9999-12-31, the last date a spreadsheet can hold. Larger
// numbers (epoch milliseconds, for one) are not dates.
const maxExcelSerial = 2958466

func excelSerial(f float64) (time.Time, bool) {
	if f <= 0 || f >= maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	switch strings.ToLower(strings.TrimSpace(record.Stringify(v))) {
	case "true", "yes", "y", "1", "x", "ja", "wahr":
		return true, true
	case "false", "no", "n", "0", "nein", "falsch":
		return false, true
	}
	return false, false
}

func stringList(v any, format record.Format) []string {
	var out []string
	switch x := v.(type) {
	case nil:
	case string:
		for _, p := range strings.Split(x, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	case []string:
		for _, p := range x {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, item := range x {
			if p := strings.TrimSpace(record.Stringify(item)); p != "" {
				out = append(out, p)
			}
		}
	default:
		if format == record.FormatJSON {
			if p := strings.TrimSpace(record.Stringify(x)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func documentString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		x = strings.TrimSpace(x)
		return x, x != ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
