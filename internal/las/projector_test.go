package las

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalLAS = "~C\nDEPT.FT 00 00: Depth\nGR.GAPI 00 00: Gamma\n~A\n1.0 10.0\n2.0 20.0\n3.0 30.0"

func TestProjectToJSONMinimal(t *testing.T) {
	doc, err := Parse(minimalLAS)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Data().SampleCount)

	out, err := ProjectToJSON(doc, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [1.0, 2.0, 3.0], "GR": [10.0, 20.0, 30.0]}`, out)
}

func TestProjectToJSONOddTokenCount(t *testing.T) {
	doc, err := Parse("~C\nDEPT.FT : d\nGR.GAPI : g\n~A\n1 10 2 20 3 30 4")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Data().SampleCount)

	out, err := ProjectToJSON(doc, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [1.0, 2.0, 3.0], "GR": [10.0, 20.0, 30.0]}`, out)
}

// tenSampleDoc has curves DEPT (0..9) and GR (100..109).
func tenSampleDoc(t *testing.T) *WellDocument {
	t.Helper()
	var b strings.Builder
	b.WriteString("~C\nDEPT.M : depth\nGR.API : gamma\n~A\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d %d\n", i, 100+i)
	}
	doc, err := Parse(b.String())
	require.NoError(t, err)
	return doc
}

func TestProjectThinningBoundary(t *testing.T) {
	doc := tenSampleDoc(t)

	p, err := Project(doc, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEPT", "GR"}, p.Keys)
	assert.Equal(t, []float64{0, 3, 6}, p.Values[0])
	assert.Equal(t, []float64{100, 103, 106}, p.Values[1])

	out, err := ProjectToJSON(doc, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [0.0, 3.0, 6.0], "GR": [100.0, 103.0, 106.0]}`, out)
}

func TestProjectClamping(t *testing.T) {
	doc := tenSampleDoc(t)

	tests := []struct {
		name      string
		maxCurves int
		thin      int
		want      string
	}{
		{"max curves above count", 40, 5, `{"DEPT": [0.0, 5.0], "GR": [100.0, 105.0]}`},
		{"thin above sample count", 2, 50, `{"DEPT": [0.0], "GR": [100.0]}`},
		{"thin equals sample count", 1, 10, `{"DEPT": [0.0]}`},
		{"zero thin", 1, 0, `{"DEPT": [0.0, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0]}`},
		{"negative thin", 1, -4, `{"DEPT": [0.0, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0]}`},
		{"zero curves", 0, 1, `{}`},
		{"negative curves", -3, 1, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ProjectToJSON(doc, tt.maxCurves, tt.thin)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestProjectIdentityRoundTrip(t *testing.T) {
	doc, err := Parse(sampleLAS)
	require.NoError(t, err)

	p, err := Project(doc, doc.Data().CurveCount, 1)
	require.NoError(t, err)
	require.Len(t, p.Values, doc.Data().CurveCount)
	for c := range p.Values {
		assert.Equal(t, doc.Data().Curve(c), p.Values[c])
	}
}

func TestProjectIdempotent(t *testing.T) {
	doc := tenSampleDoc(t)
	a, err := ProjectToJSON(doc, 2, 4)
	require.NoError(t, err)
	b, err := ProjectToJSON(doc, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProjectionAppendJSONMatchesStreaming(t *testing.T) {
	doc, err := Parse(sampleLAS)
	require.NoError(t, err)

	p, err := Project(doc, 3, 2)
	require.NoError(t, err)
	out, err := ProjectToJSON(doc, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, out, string(p.AppendJSON(nil)))
}

func TestProjectDepthJSON(t *testing.T) {
	doc := tenSampleDoc(t)
	out, err := ProjectDepthJSON(doc, 4)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [0.0, 4.0]}`, out)
}

func TestProjectNoSamples(t *testing.T) {
	doc, err := Parse("~C\nDEPT.M : d\nGR.API : g\n")
	require.NoError(t, err)
	out, err := ProjectToJSON(doc, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [], "GR": []}`, out)
}

func TestProjectMissingCurveSegment(t *testing.T) {
	doc, err := Parse("~V\nVERS. 2.0 :\n")
	require.NoError(t, err)

	_, err = ProjectToJSON(doc, 2, 1)
	assert.ErrorIs(t, err, ErrCurveSegmentMissing)
	_, err = Project(doc, 2, 1)
	assert.ErrorIs(t, err, ErrCurveSegmentMissing)
}

func TestProjectEscapesKeys(t *testing.T) {
	doc, err := Parse("~C\nA\"B.M : quoted\n~A\n1\n")
	require.NoError(t, err)
	out, err := ProjectToJSON(doc, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"A\"B": [1.0]}`, out)
}

func TestAppendNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-999.25, "-999.25"},
		{0, "0.0"},
		{0.1, "0.1"},
		{1e21, "1000000000000000000000.0"},
		{1.5e-7, "0.00000015"},
		{math.NaN(), "null"},
		{math.Inf(1), "null"},
		{math.Inf(-1), "null"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(appendNumber(nil, tt.in)), "%v", tt.in)
	}
}

func TestProjectToJSONOverflowIsNull(t *testing.T) {
	doc, err := Parse("~Curve\nDEPT.M : d\nGR.GAPI : g\n~A\n1 1e400\n2 20\n")
	require.NoError(t, err)

	out, err := ProjectToJSON(doc, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"DEPT": [1.0, 2.0], "GR": [null, 20.0]}`, out)
}
