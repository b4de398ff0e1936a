package las

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// LogTable is the decoded data segment: Values[curve][sample].
type LogTable struct {
	CurveCount  int         `json:"curve_count"`
	SampleCount int         `json:"sample_count"`
	Values      [][]float64 `json:"-"`

	// InvalidTokens counts tokens that did not parse as numbers and were
	// replaced by the fill value.
	InvalidTokens int `json:"invalid_tokens"`
	// DroppedTokens counts trailing tokens that did not complete a row.
	DroppedTokens int `json:"dropped_tokens"`
}

// Curve returns the samples of column i. The slice aliases the table.
func (t *LogTable) Curve(i int) []float64 {
	if i < 0 || i >= len(t.Values) {
		return nil
	}
	return t.Values[i]
}

// newLogTable allocates a zeroed table backed by one contiguous slice.
func newLogTable(curveCount, sampleCount int) *LogTable {
	backing := make([]float64, curveCount*sampleCount)
	values := make([][]float64, curveCount)
	for i := range values {
		values[i] = backing[i*sampleCount : (i+1)*sampleCount : (i+1)*sampleCount]
	}
	return &LogTable{
		CurveCount:  curveCount,
		SampleCount: sampleCount,
		Values:      values,
	}
}

// DecodeLogData decodes the text of a ~A segment into a LogTable with
// logCount columns.
//
// The first line (the segment label) is discarded and the rest is split on
// runs of whitespace. Tokens are row-major: token t belongs to curve
// t%logCount at sample t/logCount. A trailing partial row is dropped. Tokens
// that are not numbers are recorded as fill; numbers beyond float64 range
// keep their ±Inf value.
func DecodeLogData(logCount int, raw string, fill float64) (*LogTable, error) {
	if logCount <= 0 {
		return nil, ErrMissingCurveCount
	}

	body := ""
	if i := strings.IndexAny(raw, "\r\n"); i >= 0 {
		body = strings.TrimSpace(raw[i+1:])
	}
	tokens := strings.Fields(body)

	sampleCount := len(tokens) / logCount
	table := newLogTable(logCount, sampleCount)
	usable := logCount * sampleCount
	table.DroppedTokens = len(tokens) - usable

	for t := 0; t < usable; t++ {
		v, err := strconv.ParseFloat(tokens[t], 64)
		if err != nil && !(errors.Is(err, strconv.ErrRange) && math.IsInf(v, 0)) {
			v = fill
			table.InvalidTokens++
		}
		table.Values[t%logCount][t/logCount] = v
	}
	return table, nil
}
