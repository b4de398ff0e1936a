package las

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLAS = `~VERSION INFORMATION
 VERS.                 2.0 :   CWLS LOG ASCII STANDARD -VERSION 2.0
 WRAP.                  NO :   ONE LINE PER DEPTH STEP
~WELL INFORMATION
#MNEM.UNIT      DATA         DESCRIPTION
 STRT.M        1670.0000 :  START DEPTH
 STOP.M        1669.7500 :  STOP DEPTH
 STEP.M          -0.1250 :  STEP
 NULL.          -999.25  :  NULL VALUE
 WELL.      ANY ET AL 12-34-12-34 :  WELL
~PARAMETER INFORMATION
 BHT .DEGC   35.5000 : BOTTOM HOLE TEMPERATURE
~CURVE INFORMATION
 DEPT.M                  :  1  DEPTH
 DT  .US/M               :  2  SONIC TRANSIT TIME
 RHOB.K/M3               :  3  BULK DENSITY
~OTHER
 Note: free text, kept as-is.
~A  DEPTH     DT       RHOB
1670.000   123.450 2550.000
1669.875   123.450 -999.25
1669.750   abc     2550.000
`

func TestParseSampleFile(t *testing.T) {
	doc, err := Parse(sampleLAS)
	require.NoError(t, err)

	require.Len(t, doc.Segments(), 5)
	assert.Equal(t, "ANY ET AL 12-34-12-34", doc.WellName())

	null, ok := doc.NullValue()
	require.True(t, ok)
	assert.Equal(t, -999.25, null)

	depth, err := doc.DepthMnemonic()
	require.NoError(t, err)
	assert.Equal(t, "DEPT", depth)

	table := doc.Data()
	assert.Equal(t, 3, table.CurveCount)
	assert.Equal(t, 3, table.SampleCount)
	assert.Equal(t, []float64{1670, 1669.875, 1669.75}, table.Curve(0))
	// "abc" is filled with the declared NULL.
	assert.Equal(t, []float64{123.45, 123.45, -999.25}, table.Curve(1))
	require.Len(t, doc.Warnings(), 1)
	assert.Contains(t, doc.Warnings()[0], "non-numeric")

	other, ok := doc.Other()
	require.True(t, ok)
	assert.Contains(t, other.FreeText, "free text, kept as-is.")

	bht, ok := doc.Lookup(KindParameter, "bht")
	require.True(t, ok)
	assert.Equal(t, "DEGC", bht.Unit)
	assert.Equal(t, "35.5000", bht.Value)

	vers, ok := doc.Version()
	require.True(t, ok)
	assert.Equal(t, "VERSION INFORMATION", vers.Name)
}

func TestParseCurves(t *testing.T) {
	doc, err := Parse(sampleLAS)
	require.NoError(t, err)

	curves := doc.Curves()
	require.Len(t, curves, 3)
	assert.Equal(t, CurveInfo{Index: 1, Mnemonic: "DT", Unit: "US/M", Description: "2  SONIC TRANSIT TIME"}, curves[1])
	assert.Equal(t, 2, doc.CurveIndex("rhob"))
	assert.Equal(t, -1, doc.CurveIndex("GR"))

	series, err := doc.Series("RHOB")
	require.NoError(t, err)
	assert.Equal(t, []DepthSample{
		{Depth: 1670, Value: 2550},
		{Depth: 1669.875, Value: -999.25},
		{Depth: 1669.75, Value: 2550},
	}, series)

	_, err = doc.Series("GR")
	assert.Error(t, err)
}

func TestParseCurveCountMatchesDataColumns(t *testing.T) {
	doc, err := Parse(sampleLAS)
	require.NoError(t, err)
	seg, err := doc.CurveInfo()
	require.NoError(t, err)
	assert.Equal(t, len(seg.Quadruples), doc.Data().CurveCount)
}

func TestParseNullValueDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.UseNullValue = false
	doc, err := NewParser(opts).Parse(sampleLAS)
	require.NoError(t, err)
	assert.Equal(t, 0.0, doc.Data().Curve(1)[2])
}

func TestParseDefaultNullValue(t *testing.T) {
	text := "~C\nDEPT.M : depth\nGR.API : gamma\n~A\n1 x\n"
	opts := DefaultOptions()
	opts.DefaultNullValue = -1
	doc, err := NewParser(opts).Parse(text)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1}, doc.Data().Curve(1))
}

func TestParseNullDeclaredAfterData(t *testing.T) {
	text := "~C\nDEPT.M : depth\nGR.API : gamma\n~A\n1 x\n~W\nNULL. -999 : null\n"
	doc, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, []float64{-999}, doc.Data().Curve(1))
}

func TestParseDataBeforeCurves(t *testing.T) {
	_, err := Parse("~A\n1 2\n~C\nDEPT.M : depth\n")
	assert.ErrorIs(t, err, ErrMissingCurveCount)

	_, err = Parse("~V\nVERS. 2.0 :\n~A\n1 2\n")
	assert.ErrorIs(t, err, ErrMissingCurveCount)
}

func TestParseEmptyCurveSegment(t *testing.T) {
	_, err := Parse("~C Curves\n~A\n1 2\n")
	assert.ErrorIs(t, err, ErrMissingCurveCount)
}

func TestParseWithoutData(t *testing.T) {
	doc, err := Parse("~C\nDEPT.M : depth\nGR.API : gamma\n")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Data().CurveCount)
	assert.Equal(t, 0, doc.Data().SampleCount)
}

func TestParseWithoutCurveSegment(t *testing.T) {
	doc, err := Parse("~V\nVERS. 2.0 :\n")
	require.NoError(t, err)
	_, err = doc.CurveInfo()
	assert.ErrorIs(t, err, ErrCurveSegmentMissing)
	_, err = doc.DepthMnemonic()
	assert.ErrorIs(t, err, ErrCurveSegmentMissing)
	assert.Nil(t, doc.Curves())
}

func TestParseStrictMalformedHeader(t *testing.T) {
	text := "~W\nWELL. A : well\nnot a header\n~C\nDEPT.M : d\n~A\n1\n"

	_, err := NewParser(Options{Strict: true}).Parse(text)
	assert.ErrorIs(t, err, ErrMalformedHeaderLine)

	doc, err := Parse(text)
	require.NoError(t, err)
	require.NotEmpty(t, doc.Warnings())
	assert.Contains(t, doc.Warnings()[0], "not a header")
	assert.Equal(t, "A", doc.WellName())
}

func TestParseStrictEmptySegment(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"label only", "~Version Information\n~Curve\nDEPT.M : Depth\n~A\n1 2\n"},
		{"whitespace body", "~Version\n   \n\t\n~Curve\nDEPT.M : Depth\n~A\n1 2\n"},
		{"free text", "~Other\n\n~Curve\nDEPT.M : Depth\n~A\n1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(Options{Strict: true}).Parse(tt.text)
			assert.ErrorIs(t, err, ErrEmptySegment)

			doc, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Len(t, doc.Curves(), 1)
		})
	}
}

func TestParseKeepsUnknownSegments(t *testing.T) {
	doc, err := Parse("~X Extra\nFOO.BAR 1 : foo\n~C\nDEPT.M : d\n~A\n1\n")
	require.NoError(t, err)

	seg, ok := doc.Segment(KindUnknown)
	require.True(t, ok)
	assert.Equal(t, "X Extra", seg.Name)
	require.Len(t, seg.Quadruples, 1)
	assert.Equal(t, "FOO", seg.Quadruples[0].Mnemonic)
}

func TestParseAdditionalDataSegmentIgnored(t *testing.T) {
	doc, err := Parse("~C\nDEPT.M : d\n~A\n1\n2\n~A\n3\n")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, doc.Data().Curve(0))
	assert.Contains(t, strings.Join(doc.Warnings(), "\n"), "additional ~A")
}

func TestParseValidateDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.ValidateDepth = true
	p := NewParser(opts)

	for _, first := range []string{"DEPT", "depth", "TIME", "Index"} {
		_, err := p.Parse("~C\n" + first + ".M : d\nGR.API : g\n~A\n1 2\n")
		assert.NoError(t, err, first)
	}

	_, err := p.Parse("~C\nGR.API : g\nDEPT.M : d\n~A\n1 2\n")
	assert.ErrorIs(t, err, ErrDepthColumnAssumption)
}

func TestParseWarningsCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("~W\n")
	for i := 0; i < maxWarnings+20; i++ {
		b.WriteString("bad line\n")
	}
	doc, err := Parse(b.String())
	require.NoError(t, err)
	require.Len(t, doc.Warnings(), maxWarnings+1)
	assert.Contains(t, doc.Warnings()[maxWarnings], "20 more warnings suppressed")
}

func TestParseBytes(t *testing.T) {
	// UTF-8 BOM plus a Windows-1252 degree sign (0xB0) in a unit.
	data := append([]byte{0xef, 0xbb, 0xbf}, []byte("~C\nTEMP.\xb0C : temp\n~A\n21.5\n")...)
	doc, err := NewParser(DefaultOptions()).ParseBytes(data)
	require.NoError(t, err)
	curves := doc.Curves()
	require.Len(t, curves, 1)
	assert.Equal(t, "°C", curves[0].Unit)
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "plain", DecodeText([]byte("plain")))
	assert.Equal(t, "plain", DecodeText([]byte("\xef\xbb\xbfplain")))
	assert.Equal(t, "café", DecodeText([]byte("caf\xe9")))
	assert.Equal(t, "café", DecodeText([]byte("café")))
}
