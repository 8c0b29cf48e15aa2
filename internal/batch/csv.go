// Package batch evaluates the pipeline over a dataset of clinical cases.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Case is one input row.
type Case struct {
	ID            string
	ExpectedLabel string
	Description   string
}

// Result is one output row.
type Result struct {
	Case
	Report string
	Err    error
}

// FailureMarker prefixes the report column of a row whose analysis failed.
const FailureMarker = "ANALYSIS FAILED: "

var ErrMissingColumn = errors.New("missing required column")

// Column names, with the headers of the original Portuguese datasets as aliases.
var columnAliases = map[string][]string{
	"case_id":              {"case_id", "id_caso"},
	"expected_label":       {"expected_label", "diagnostico_esperado"},
	"clinical_description": {"clinical_description", "descricao_clinica"},
}

// ReadCases parses a CSV dataset with a header row.
func ReadCases(r io.Reader) ([]Case, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty dataset", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var cases []Case
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) (string, error) {
			i := idx[col]
			if i >= len(rec) {
				return "", fmt.Errorf("line %d: %w %q", line, ErrMissingColumn, col)
			}
			return strings.TrimSpace(rec[i]), nil
		}
		var c Case
		if c.ID, err = get("case_id"); err != nil {
			return nil, err
		}
		if c.ExpectedLabel, err = get("expected_label"); err != nil {
			return nil, err
		}
		if c.Description, err = get("clinical_description"); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func columnIndex(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		pos[h] = i
	}
	idx := make(map[string]int, len(columnAliases))
	for col, aliases := range columnAliases {
		found := false
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[col] = i
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}
	return idx, nil
}

// WriteResults writes the report CSV, prefixed with a UTF-8 byte order mark
// so spreadsheet tools detect the encoding.
func WriteResults(w io.Writer, results []Result) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"case_id", "expected_label", "generated_report"}); err != nil {
		return err
	}
	for _, r := range results {
		report := r.Report
		if r.Err != nil {
			report = FailureMarker + r.Err.Error()
		}
		if err := cw.Write([]string{r.ID, r.ExpectedLabel, report}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
