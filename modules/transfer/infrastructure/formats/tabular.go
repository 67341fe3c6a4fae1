package formats

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// ParseTabular reads the first sheet of a workbook.
func ParseTabular(r io.Reader) (*record.File, error) {
	f, err := ParseTabularMultiTab(r)
	if err != nil {
		return nil, err
	}
	if len(f.Tabs) > 1 {
		f.Tabs = f.Tabs[:1]
	}
	return f, nil
}

// ParseTabularMultiTab reads every sheet of a workbook as one tab.
func ParseTabularMultiTab(r io.Reader) (*record.File, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = wb.Close() }()

	out := &record.File{Format: record.FormatTabular}
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "sheet %q", sheet)
		}
		tab, err := tabFromRows(schema.NormalizeHeader(sheet), rows)
		if err != nil {
			return nil, errors.Wrapf(err, "sheet %q", sheet)
		}
		out.Tabs = append(out.Tabs, tab)
	}
	return out, nil
}

// ParseCSV reads a single sheet. The tab is named after the file.
func ParseCSV(r io.Reader, tabName string) (*record.File, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	tab, err := tabFromRows(tabName, rows)
	if err != nil {
		return nil, err
	}
	return &record.File{Format: record.FormatTabular, Tabs: []record.Tab{tab}}, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// tabFromRows turns a header row plus data rows into records. Blank rows are
// dropped; cells under a blank header are ignored.
func tabFromRows(name string, rows [][]string) (record.Tab, error) {
	tab := record.Tab{Name: name}
	if len(rows) == 0 {
		return tab, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		if !utf8.ValidString(h) {
			return tab, errors.New("invalid header encoding")
		}
		header[i] = schema.NormalizeHeader(h)
		if header[i] != "" {
			tab.Columns = append(tab.Columns, header[i])
		}
	}
	for _, row := range rows[1:] {
		rec := record.RawRecord{}
		blank := true
		for i, col := range header {
			if col == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v != "" {
				blank = false
			}
			rec[col] = v
		}
		if !blank {
			tab.Records = append(tab.Records, rec)
		}
	}
	return tab, nil
}

func cells(cols []string, rec record.RawRecord) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = record.Stringify(rec[c])
	}
	return out
}

func WriteCSV(w io.Writer, t record.Tab) error {
	cols := columnsOf(t)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, rec := range t.Records {
		if err := cw.Write(cells(cols, rec)); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one sheet per tab.
func WriteXLSX(w io.Writer, f *record.File) error {
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	const defaultSheet = "Sheet1"
	for _, t := range f.Tabs {
		if _, err := wb.NewSheet(t.Name); err != nil {
			return errors.Wrapf(err, "sheet %q", t.Name)
		}
		cols := columnsOf(t)
		if err := wb.SetSheetRow(t.Name, "A1", &cols); err != nil {
			return errors.Wrapf(err, "sheet %q header", t.Name)
		}
		for i, rec := range t.Records {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			row := cells(cols, rec)
			if err := wb.SetSheetRow(t.Name, cell, &row); err != nil {
				return errors.Wrapf(err, "sheet %q row %d", t.Name, i+1)
			}
		}
	}
	if len(f.Tabs) > 0 && !hasTab(f, defaultSheet) {
		if err := wb.DeleteSheet(defaultSheet); err != nil {
			return errors.Wrap(err, "drop default sheet")
		}
		idx, err := wb.GetSheetIndex(f.Tabs[0].Name)
		if err != nil {
			return err
		}
		wb.SetActiveSheet(idx)
	}
	if err := wb.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func hasTab(f *record.File, name string) bool {
	for _, t := range f.Tabs {
		if t.Name == name {
			return true
		}
	}
	return false
}
