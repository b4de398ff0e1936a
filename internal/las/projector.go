package las

import (
	"encoding/json"
	"math"
	"strconv"
)

// Projection is a thinned, ordered view of the leading curves of a document.
// Keys[i] names Values[i]; Keys[0] is the depth curve.
type Projection struct {
	Keys   []string    `json:"keys" msgpack:"keys"`
	Values [][]float64 `json:"values" msgpack:"values"`
	Thin   int         `json:"thin" msgpack:"thin"`
}

// window resolves the curves and samples a projection covers.
//
// curves is maxCurves clamped to [0, CurveCount]. thin is clamped to
// [1, SampleCount] (a non-positive thin is 1) and usable is the largest
// multiple of thin not above SampleCount, so the thinned series never reads
// past the table.
type window struct {
	keys   []string
	curves int
	thin   int
	usable int
}

func newWindow(doc *WellDocument, maxCurves, thin int) (window, error) {
	seg, err := doc.CurveInfo()
	if err != nil {
		return window{}, err
	}
	table := doc.Data()

	curves := min(maxCurves, table.CurveCount, len(seg.Quadruples))
	if curves < 0 {
		curves = 0
	}
	thin = min(thin, table.SampleCount)
	if thin < 1 {
		thin = 1
	}

	keys := make([]string, curves)
	for i := range keys {
		keys[i] = seg.Quadruples[i].Mnemonic
	}
	return window{
		keys:   keys,
		curves: curves,
		thin:   thin,
		usable: table.SampleCount - table.SampleCount%thin,
	}, nil
}

// Project selects the first maxCurves curves and keeps every thin-th sample
// starting at 0.
func Project(doc *WellDocument, maxCurves, thin int) (*Projection, error) {
	w, err := newWindow(doc, maxCurves, thin)
	if err != nil {
		return nil, err
	}
	p := &Projection{
		Keys:   w.keys,
		Values: make([][]float64, w.curves),
		Thin:   w.thin,
	}
	for c := 0; c < w.curves; c++ {
		src := doc.Data().Curve(c)
		out := make([]float64, 0, w.usable/w.thin)
		for s := 0; s < w.usable; s += w.thin {
			out = append(out, src[s])
		}
		p.Values[c] = out
	}
	return p, nil
}

// ProjectToJSON renders the first maxCurves curves, keeping every thin-th
// sample, as a single-line JSON object:
//
//	{"DEPT": [1.0, 2.0], "GR": [10.0, 20.0]}
func ProjectToJSON(doc *WellDocument, maxCurves, thin int) (string, error) {
	b, err := AppendProjectionJSON(nil, doc, maxCurves, thin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ProjectDepthJSON renders only the depth curve.
func ProjectDepthJSON(doc *WellDocument, thin int) (string, error) {
	return ProjectToJSON(doc, 1, thin)
}

// AppendProjectionJSON appends the ProjectToJSON rendering to dst.
func AppendProjectionJSON(dst []byte, doc *WellDocument, maxCurves, thin int) ([]byte, error) {
	w, err := newWindow(doc, maxCurves, thin)
	if err != nil {
		return dst, err
	}

	dst = append(dst, '{')
	for c := 0; c < w.curves; c++ {
		if c > 0 {
			dst = append(dst, ", "...)
		}
		dst = appendKey(dst, w.keys[c])
		dst = append(dst, ": ["...)
		src := doc.Data().Curve(c)
		for s := 0; s < w.usable; s += w.thin {
			if s > 0 {
				dst = append(dst, ", "...)
			}
			dst = appendNumber(dst, src[s])
		}
		dst = append(dst, ']')
	}
	return append(dst, '}'), nil
}

// AppendJSON renders an already built projection in the same layout.
func (p *Projection) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')
	for c, key := range p.Keys {
		if c > 0 {
			dst = append(dst, ", "...)
		}
		dst = appendKey(dst, key)
		dst = append(dst, ": ["...)
		for i, v := range p.Values[c] {
			if i > 0 {
				dst = append(dst, ", "...)
			}
			dst = appendNumber(dst, v)
		}
		dst = append(dst, ']')
	}
	return append(dst, '}')
}

func appendKey(dst []byte, key string) []byte {
	quoted, err := json.Marshal(key)
	if err != nil {
		return strconv.AppendQuote(dst, key)
	}
	return append(dst, quoted...)
}

// appendNumber writes the shortest round-tripping decimal form of v, with a
// ".0" suffix on integral values. NaN and infinities are not valid JSON and
// are written as null.
func appendNumber(dst []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(dst, "null"...)
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, v, 'f', -1, 64)
	for _, c := range dst[start:] {
		if c == '.' {
			return dst
		}
	}
	return append(dst, ".0"...)
}
