package las

import (
	"fmt"
	"strconv"
	"strings"
)

// CurveInfo describes one data column.
type CurveInfo struct {
	Index       int    `json:"index"`
	Mnemonic    string `json:"mnemonic"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// DepthSample pairs a curve value with the depth (column 0) of its row.
type DepthSample struct {
	Depth float64 `json:"depth"`
	Value float64 `json:"value"`
}

// WellDocument is one parsed LAS file: header segments in file order plus
// the decoded data. It is built once by a Parser and not modified after;
// callers must treat returned slices as read-only.
type WellDocument struct {
	segments []HeaderSegment
	data     *LogTable
	warnings []string

	// index of the first ~C segment in segments, -1 if none
	curveIdx int
}

func newWellDocument(segments []HeaderSegment, data *LogTable, warnings []string) *WellDocument {
	doc := &WellDocument{
		segments: segments,
		data:     data,
		warnings: warnings,
		curveIdx: -1,
	}
	for i := range segments {
		if segments[i].Kind == KindCurve {
			doc.curveIdx = i
			break
		}
	}
	return doc
}

// Segments returns the header segments in file order.
func (d *WellDocument) Segments() []HeaderSegment {
	return d.segments
}

// Data returns the decoded log table.
func (d *WellDocument) Data() *LogTable {
	return d.data
}

// Warnings returns recoverable problems found while parsing.
func (d *WellDocument) Warnings() []string {
	return d.warnings
}

// CurveInfo returns the first ~C segment. Quadruple i names data column i.
func (d *WellDocument) CurveInfo() (*HeaderSegment, error) {
	if d.curveIdx < 0 {
		return nil, ErrCurveSegmentMissing
	}
	return &d.segments[d.curveIdx], nil
}

// DepthMnemonic returns the mnemonic of column 0. By LAS convention this is
// the depth (or index) curve; the convention is only checked when the
// parser runs with ValidateDepth.
func (d *WellDocument) DepthMnemonic() (string, error) {
	curves, err := d.CurveInfo()
	if err != nil {
		return "", err
	}
	if len(curves.Quadruples) == 0 {
		return "", fmt.Errorf("curve segment is empty: %w", ErrMissingCurveCount)
	}
	return curves.Quadruples[0].Mnemonic, nil
}

// Segment returns the first segment of the given kind.
func (d *WellDocument) Segment(kind SegmentKind) (*HeaderSegment, bool) {
	for i := range d.segments {
		if d.segments[i].Kind == kind {
			return &d.segments[i], true
		}
	}
	return nil, false
}

// Version returns the first ~V segment.
func (d *WellDocument) Version() (*HeaderSegment, bool) { return d.Segment(KindVersion) }

// WellInfo returns the first ~W segment.
func (d *WellDocument) WellInfo() (*HeaderSegment, bool) { return d.Segment(KindWell) }

// Parameters returns the first ~P segment.
func (d *WellDocument) Parameters() (*HeaderSegment, bool) { return d.Segment(KindParameter) }

// Other returns the free-text ~O segment.
func (d *WellDocument) Other() (*HeaderSegment, bool) { return d.Segment(KindOther) }

// Lookup finds a header value by segment kind and mnemonic (case-insensitive).
func (d *WellDocument) Lookup(kind SegmentKind, mnemonic string) (Quadruple, bool) {
	seg, ok := d.Segment(kind)
	if !ok {
		return Quadruple{}, false
	}
	return seg.Find(mnemonic)
}

// WellName returns the WELL value from the ~W segment, or "".
func (d *WellDocument) WellName() string {
	q, _ := d.Lookup(KindWell, "WELL")
	return q.Value
}

// NullValue returns the NULL sentinel declared in the ~W segment.
func (d *WellDocument) NullValue() (float64, bool) {
	return declaredNull(d.segments)
}

// Curves lists the curve definitions, or nil when there is no ~C segment.
func (d *WellDocument) Curves() []CurveInfo {
	seg, err := d.CurveInfo()
	if err != nil {
		return nil
	}
	curves := make([]CurveInfo, len(seg.Quadruples))
	for i, q := range seg.Quadruples {
		curves[i] = CurveInfo{
			Index:       i,
			Mnemonic:    q.Mnemonic,
			Unit:        q.Unit,
			Description: q.Description,
		}
	}
	return curves
}

// CurveIndex returns the column of the first curve named mnemonic
// (case-insensitive), or -1.
func (d *WellDocument) CurveIndex(mnemonic string) int {
	seg, err := d.CurveInfo()
	if err != nil {
		return -1
	}
	for i, q := range seg.Quadruples {
		if strings.EqualFold(q.Mnemonic, mnemonic) {
			return i
		}
	}
	return -1
}

// Series pairs every sample of a curve with its depth.
func (d *WellDocument) Series(mnemonic string) ([]DepthSample, error) {
	if _, err := d.CurveInfo(); err != nil {
		return nil, err
	}
	idx := d.CurveIndex(mnemonic)
	if idx < 0 || idx >= d.data.CurveCount {
		return nil, fmt.Errorf("curve %q not found", mnemonic)
	}

	depths := d.data.Curve(0)
	values := d.data.Curve(idx)
	series := make([]DepthSample, len(values))
	for i, v := range values {
		series[i] = DepthSample{Depth: depths[i], Value: v}
	}
	return series, nil
}

// declaredNull reads NULL from the first ~W segment.
func declaredNull(segments []HeaderSegment) (float64, bool) {
	for i := range segments {
		if segments[i].Kind != KindWell {
			continue
		}
		q, ok := segments[i].Find("NULL")
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(q.Value, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
