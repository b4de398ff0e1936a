package archive

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/las"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const testLAS = `~Version
VERS. 2.0 : CWLS LOG ASCII STANDARD
~Well
WELL. TEST WELL 1 : WELL NAME
NULL. -999.25 : NULL VALUE
~Curve
DEPT.M : DEPTH
GR.GAPI : GAMMA RAY
gr.GAPI : GAMMA RAY COPY
~A
100.0 55.0 1.0
100.5 -999.25 2.0
101.0 60.0 3.0
`

func parseTest(t *testing.T) *las.WellDocument {
	t.Helper()
	doc, err := las.Parse(testLAS)
	require.NoError(t, err)
	return doc
}

func TestColumnNames(t *testing.T) {
	got := ColumnNames([]las.CurveInfo{
		{Mnemonic: "DEPT"},
		{Mnemonic: "GR"},
		{Mnemonic: ""},
		{Mnemonic: "gr"},
		{Mnemonic: "GR_2"},
		{Mnemonic: "GR"},
	})
	assert.Equal(t, []string{"DEPT", "GR", "curve_2", "gr_2", "GR_2_2", "GR_3"}, got)
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, compress.Codecs.Zstd, compressionCodec("ZSTD"))
	assert.Equal(t, compress.Codecs.Gzip, compressionCodec("gzip"))
	assert.Equal(t, compress.Codecs.Uncompressed, compressionCodec("none"))
	assert.Equal(t, compress.Codecs.Snappy, compressionCodec(""))
}

func TestWriteParquet(t *testing.T) {
	doc := parseTest(t)
	w := NewWriter(config.ArchiveConfig{Compression: "zstd", WriteStatistics: true}, zerolog.Nop())

	data, err := w.WriteParquet(doc)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(3), tbl.NumRows())
	require.Equal(t, int64(3), tbl.NumCols())

	schema := tbl.Schema()
	assert.Equal(t, "DEPT", schema.Field(0).Name)
	assert.Equal(t, "GR", schema.Field(1).Name)
	assert.Equal(t, "gr_2", schema.Field(2).Name)

	md := schema.Metadata()
	idx := md.FindKey(MetaWellName)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "TEST WELL 1", md.Values()[idx])
	idx = md.FindKey(MetaNullValue)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "-999.25", md.Values()[idx])

	depth := tbl.Column(0).Data().Chunk(0).(*array.Float64)
	assert.Equal(t, []float64{100.0, 100.5, 101.0}, depth.Float64Values())

	gr := tbl.Column(1).Data().Chunk(0).(*array.Float64)
	assert.False(t, gr.IsNull(0))
	assert.True(t, gr.IsNull(1))
	assert.Equal(t, 60.0, gr.Value(2))
}

func TestWriteParquet_NoSamples(t *testing.T) {
	doc, err := las.Parse("~Curve\nDEPT.M : DEPTH\n")
	require.NoError(t, err)

	w := NewWriter(config.ArchiveConfig{}, zerolog.Nop())
	data, err := w.WriteParquet(doc)
	require.NoError(t, err)

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(0), tbl.NumRows())
	assert.Equal(t, int64(1), tbl.NumCols())
}

func TestEncodeProjection(t *testing.T) {
	doc := parseTest(t)
	p, err := las.Project(doc, 2, 2)
	require.NoError(t, err)

	data, err := EncodeProjection(p)
	require.NoError(t, err)

	var got las.Projection
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, []string{"DEPT", "GR"}, got.Keys)
	assert.Equal(t, [][]float64{{100.0}, {55.0}}, got.Values)
	assert.Equal(t, 2, got.Thin)
}
