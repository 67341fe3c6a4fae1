package services

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/constants"
)

var (
	idPattern   = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)
	// spreadsheet date cells without a number format arrive as serial numbers
	serialPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// Finding is one validation message. Row is the 1-based data row; 0 means
// the finding concerns the file or a column rather than a row.
type Finding struct {
	Tab     string `json:"tab,omitempty"`
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	if f.Row == 0 {
		return f.Message
	}
	return rowError(f.Row, f.Message)
}

type FieldCoverage struct {
	MandatoryPresent []string `json:"mandatoryPresent"`
	MandatoryMissing []string `json:"mandatoryMissing"`
	OptionalPresent  []string `json:"optionalPresent"`
	OptionalMissing  []string `json:"optionalMissing"`
	Unmapped         []string `json:"unmapped"`
}

type ValidationSummary struct {
	TotalRows     int `json:"totalRows"`
	ValidRows     int `json:"validRows"`
	InvalidRows   int `json:"invalidRows"`
	DuplicateRows int `json:"duplicateRows"`
}

type ValidationResult struct {
	IsValid       bool              `json:"isValid"`
	Errors        []Finding         `json:"errors"`
	Warnings      []Finding         `json:"warnings"`
	Summary       ValidationSummary `json:"summary"`
	FieldCoverage FieldCoverage     `json:"fieldCoverage"`
	// TabValidations is only set on the aggregate of a multi-tab batch.
	TabValidations map[string]*ValidationResult `json:"tabValidations,omitempty"`
}

// Validator applies the field catalog to raw records. Its findings are
// advisory: they feed the UI and never change what the importer does unless
// strict validation is switched on.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(records []record.RawRecord, t schema.EntityType, format record.Format) ValidationResult {
	res := ValidationResult{Errors: []Finding{}, Warnings: []Finding{}}
	s, ok := schema.Of(t)
	if !ok {
		res.Errors = append(res.Errors, Finding{Message: fmt.Sprintf("unknown entity type %q", t)})
		return res
	}
	res.Summary.TotalRows = len(records)

	columns := presentColumns(records)
	res.FieldCoverage = coverage(s, columns)
	known := knownFields(s)
	for _, c := range res.FieldCoverage.Unmapped {
		msg := fmt.Sprintf("unknown column %q is ignored", c)
		if hint := schema.Suggest(c, known); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		res.Warnings = append(res.Warnings, Finding{Field: c, Message: msg})
	}

	firstSeen := map[string]int{}
	for i, rec := range records {
		row := i + 1
		before := len(res.Errors)

		if id := rec.OriginalID(); id != "" {
			if !idPattern.MatchString(id) {
				res.Warnings = append(res.Warnings, Finding{Row: row, Field: schema.IDField, Message: fmt.Sprintf("id %q contains unusual characters", id)})
			}
			if first, dup := firstSeen[id]; dup {
				res.Errors = append(res.Errors, Finding{Row: row, Field: schema.IDField, Message: fmt.Sprintf("duplicate id %q (first used in row %d)", id, first)})
				res.Summary.DuplicateRows++
			} else {
				firstSeen[id] = row
			}
		}

		v.checkNames(s, rec, row, format, &res)
		v.checkFormats(s, rec, row, &res)

		if len(res.Errors) == before {
			res.Summary.ValidRows++
		} else {
			res.Summary.InvalidRows++
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateTabs validates every tab on its own and sums the results.
func (v *Validator) ValidateTabs(tabs []BatchTab, format record.Format) ValidationResult {
	agg := ValidationResult{
		Errors:         []Finding{},
		Warnings:       []Finding{},
		IsValid:        true,
		TabValidations: map[string]*ValidationResult{},
	}
	for _, tab := range tabs {
		res := v.Validate(tab.Records, tab.EntityType, format)
		name := tab.Name
		if name == "" {
			name = string(tab.EntityType)
		}
		for _, f := range res.Errors {
			f.Tab = name
			agg.Errors = append(agg.Errors, f)
		}
		for _, f := range res.Warnings {
			f.Tab = name
			agg.Warnings = append(agg.Warnings, f)
		}
		agg.Summary.TotalRows += res.Summary.TotalRows
		agg.Summary.ValidRows += res.Summary.ValidRows
		agg.Summary.InvalidRows += res.Summary.InvalidRows
		agg.Summary.DuplicateRows += res.Summary.DuplicateRows
		agg.IsValid = agg.IsValid && res.IsValid
		r := res
		agg.TabValidations[name] = &r
	}
	return agg
}

func (v *Validator) checkNames(s *schema.Schema, rec record.RawRecord, row int, format record.Format, res *ValidationResult) {
	if format == record.FormatJSON && s.NameRule == schema.NameRulePerson {
		if rec.Has("firstName") || rec.Has("lastName") || rec.Has("name") {
			return
		}
		if rec.Has("email") {
			res.Warnings = append(res.Warnings, Finding{Row: row, Field: "lastName", Message: fmt.Sprintf("no name given, it will be derived from email %q", rec.String("email"))})
			return
		}
		res.Errors = append(res.Errors, Finding{Row: row, Field: "lastName", Message: "person needs firstName, lastName, name or email"})
		return
	}
	for _, f := range s.Mandatory {
		if !rec.Has(f) {
			res.Errors = append(res.Errors, Finding{Row: row, Field: f, Message: fmt.Sprintf("mandatory field %q is missing", f)})
		}
	}
}

func (v *Validator) checkFormats(s *schema.Schema, rec record.RawRecord, row int, res *ValidationResult) {
	warn := func(field, msg string) {
		res.Warnings = append(res.Warnings, Finding{Row: row, Field: field, Message: msg})
	}
	for _, f := range s.Dates {
		if !rec.Has(f) {
			continue
		}
		if _, isString := rec[f].(string); !isString {
			continue
		}
		val := rec.String(f)
		if datePattern.MatchString(val) || serialPattern.MatchString(val) {
			continue
		}
		if _, parsed := parseDate(val); parsed {
			warn(f, fmt.Sprintf("%q is not an ISO-8601 date", val))
		} else {
			warn(f, fmt.Sprintf("%q is not an ISO-8601 date and will be left empty", val))
		}
	}
	for _, f := range s.Numbers {
		if rec.Has(f) {
			if _, ok := parseNumber(rec[f]); !ok {
				warn(f, fmt.Sprintf("%q is not a number and will be left empty", rec.String(f)))
			}
		}
	}
	for _, f := range s.Emails {
		if rec.Has(f) && constants.Validate.Var(rec.String(f), "email") != nil {
			warn(f, fmt.Sprintf("%q does not look like an email address", rec.String(f)))
		}
	}
	for _, f := range s.URLs {
		if rec.Has(f) && constants.Validate.Var(rec.String(f), "url") != nil {
			warn(f, fmt.Sprintf("%q does not look like a URL", rec.String(f)))
		}
	}
	for _, f := range sortedKeys(s.Enums) {
		if !rec.Has(f) {
			continue
		}
		enum := s.Enums[f]
		if got, defaulted := coerceEnum(rec[f], enum); defaulted {
			warn(f, fmt.Sprintf("%q is not one of %v, %s will be used", rec.String(f), enum.Values, got))
		}
	}
	if s.Document != "" && rec.Has(s.Document) {
		if doc, ok := rec[s.Document].(string); ok && !gjson.Valid(doc) {
			res.Errors = append(res.Errors, Finding{Row: row, Field: s.Document, Message: "embedded document is not valid JSON"})
		}
	}
}

func presentColumns(records []record.RawRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, rec := range records {
		for _, c := range rec.Columns() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

func knownFields(s *schema.Schema) []string {
	out := append([]string{}, s.Mandatory...)
	return append(out, s.OptionalFields()...)
}

func coverage(s *schema.Schema, columns []string) FieldCoverage {
	present := map[string]bool{}
	for _, c := range columns {
		present[c] = true
	}
	cov := FieldCoverage{
		MandatoryPresent: []string{},
		MandatoryMissing: []string{},
		OptionalPresent:  []string{},
		OptionalMissing:  []string{},
		Unmapped:         []string{},
	}
	for _, f := range s.Mandatory {
		if present[f] {
			cov.MandatoryPresent = append(cov.MandatoryPresent, f)
		} else {
			cov.MandatoryMissing = append(cov.MandatoryMissing, f)
		}
	}
	for _, f := range s.OptionalFields() {
		if present[f] {
			cov.OptionalPresent = append(cov.OptionalPresent, f)
		} else {
			cov.OptionalMissing = append(cov.OptionalMissing, f)
		}
	}
	for _, c := range columns {
		if s.Known(c) {
			continue
		}
		// a combined name column is accepted for people
		if s.NameRule == schema.NameRulePerson && c == "name" {
			continue
		}
		cov.Unmapped = append(cov.Unmapped, c)
	}
	return cov
}
