// Package tranche loads truth-sensitivity tranche tables and classifies
// variant quality scores against them.
package tranche

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/variant"
)

// Tranche is one quality tier from a recalibration run: calls scoring at
// least MinScore are captured at TruthSensitivity percent of the truth set.
type Tranche struct {
	Name             string
	MinScore         float64
	TruthSensitivity float64
	Mode             variant.Mode
}

// Columns the tranches file must provide. Remaining columns (titv ratios,
// site counts) are ignored.
const (
	colTruthSensitivity = "targetTruthSensitivity"
	colMinScore         = "minVQSLod"
	colName             = "filterName"
	colMode             = "model"
)

// Parse reads a tranches file: '#' comment lines, then a CSV header row, then
// one row per tranche. Row order is not significant; Table normalization
// imposes the order the classifier needs.
func Parse(r io.Reader) ([]Tranche, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tranches: read header")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	for _, required := range []string{colTruthSensitivity, colMinScore, colName, colMode} {
		if _, ok := index[required]; !ok {
			return nil, eris.Errorf("tranches: missing column %q", required)
		}
	}

	var tranches []Tranche
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "tranches: line %d", line)
		}

		tr, err := parseRow(row, index)
		if err != nil {
			return nil, eris.Wrapf(err, "tranches: line %d", line)
		}
		tranches = append(tranches, tr)
	}
	return tranches, nil
}

func parseRow(row []string, index map[string]int) (Tranche, error) {
	field := func(name string) (string, error) {
		i := index[name]
		if i >= len(row) {
			return "", eris.Errorf("missing field %q", name)
		}
		return strings.TrimSpace(row[i]), nil
	}

	var (
		tr  Tranche
		err error
	)
	if tr.Name, err = field(colName); err != nil {
		return Tranche{}, err
	}
	if tr.Name == "" {
		return Tranche{}, eris.New("empty filter name")
	}

	mode, err := field(colMode)
	if err != nil {
		return Tranche{}, err
	}
	tr.Mode = variant.Mode(mode)

	ts, err := field(colTruthSensitivity)
	if err != nil {
		return Tranche{}, err
	}
	if tr.TruthSensitivity, err = strconv.ParseFloat(ts, 64); err != nil {
		return Tranche{}, eris.Wrapf(err, "parse %s", colTruthSensitivity)
	}

	min, err := field(colMinScore)
	if err != nil {
		return Tranche{}, err
	}
	if tr.MinScore, err = strconv.ParseFloat(min, 64); err != nil {
		return Tranche{}, eris.Wrapf(err, "parse %s", colMinScore)
	}

	return tr, nil
}
