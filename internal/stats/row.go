// Package stats formats and parses sweep output and summarizes it.
package stats

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"substrata/internal/model"
)

const (
	rowPrefix      = "CSV_ROW"
	hysteresisMark = "[H]"
)

var consensusPattern = regexp.MustCompile(`\((\d+)/(\d+)\)`)

// Row is one evaluated condition as printed on a CSV_ROW line.
type Row struct {
	Sigma      float64 `json:"sigma"`
	EnergyZero float64 `json:"energy_zero"`
	EnergyAbs1 float64 `json:"energy_abs1"`
	NStates    int     `json:"n_states"`
	Successes  int     `json:"successes"`
	Trials     int     `json:"trials"`
	// HasConsensus is false when the line carried no (k/n) field.
	HasConsensus bool `json:"has_consensus"`
	Hysteresis   bool `json:"hysteresis"`
}

func NewRow(cond model.Condition, result model.ClassificationResult) Row {
	return Row{
		Sigma:        cond.Sigma,
		EnergyZero:   cond.EnergyZero,
		EnergyAbs1:   cond.EnergyAbs1,
		NStates:      result.NStates,
		Successes:    result.Successes,
		Trials:       result.Trials,
		HasConsensus: true,
		Hysteresis:   result.Hysteresis,
	}
}

// FormatRow renders
// CSV_ROW,<sigma>,<energy_zero>,<energy_abs1>,<n_states>,(<k>/<n>)[,[H]].
func FormatRow(r Row) string {
	var b strings.Builder
	b.WriteString(rowPrefix)
	for _, v := range []float64{r.Sigma, r.EnergyZero, r.EnergyAbs1} {
		b.WriteByte(',')
		b.WriteString(FormatFloat(v))
	}
	fmt.Fprintf(&b, ",%d,(%d/%d)", r.NStates, r.Successes, r.Trials)
	if r.Hysteresis {
		b.WriteString("," + hysteresisMark)
	}
	return b.String()
}

// ParseRow reads a CSV_ROW line. The consensus and hysteresis fields are
// located anywhere after the n_states column.
func ParseRow(line string) (Row, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, rowPrefix+",") {
		return Row{}, fmt.Errorf("not a %s line", rowPrefix)
	}
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return Row{}, fmt.Errorf("%s: expected at least 5 fields, got %d", rowPrefix, len(parts))
	}
	var (
		row Row
		err error
	)
	for i, dst := range []*float64{&row.Sigma, &row.EnergyZero, &row.EnergyAbs1} {
		if *dst, err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64); err != nil {
			return Row{}, fmt.Errorf("%s field %d: %w", rowPrefix, i+1, err)
		}
	}
	if row.NStates, err = strconv.Atoi(strings.TrimSpace(parts[4])); err != nil {
		return Row{}, fmt.Errorf("%s n_states: %w", rowPrefix, err)
	}

	rest := strings.Join(parts[5:], ",")
	row.Hysteresis = strings.Contains(rest, hysteresisMark)
	if m := consensusPattern.FindStringSubmatch(rest); m != nil {
		if row.Successes, err = strconv.Atoi(m[1]); err != nil {
			return Row{}, fmt.Errorf("%s successes: %w", rowPrefix, err)
		}
		if row.Trials, err = strconv.Atoi(m[2]); err != nil {
			return Row{}, fmt.Errorf("%s trials: %w", rowPrefix, err)
		}
		row.HasConsensus = true
	}
	return row, nil
}

// FormatFloat prints v the way Python's str(float) does: shortest
// round-trip digits, a trailing ".0" on integral values, and exponent form
// outside [1e-4, 1e16).
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(v)
	if abs < 1e-4 || abs >= 1e16 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
