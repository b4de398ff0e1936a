package archive

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/las"
	"github.com/rs/zerolog"
)

// Schema metadata keys.
const (
	MetaWellName  = "welllog.well_name"
	MetaNullValue = "welllog.null_value"
	MetaCurves    = "welllog.curves"
	MetaUnit      = "unit"
	MetaMnemonic  = "mnemonic"
)

// memory.GoAllocator is safe for concurrent use.
var sharedAllocator = memory.NewGoAllocator()

// Writer converts parsed documents to Parquet: one nullable float64 column
// per curve, in curve order.
type Writer struct {
	compression     compress.Compression
	useDictionary   bool
	writeStatistics bool
	mem             memory.Allocator
	logger          zerolog.Logger
}

// NewWriter creates a Parquet writer from the archive configuration.
func NewWriter(cfg config.ArchiveConfig, logger zerolog.Logger) *Writer {
	return &Writer{
		compression:     compressionCodec(cfg.Compression),
		useDictionary:   cfg.UseDictionary,
		writeStatistics: cfg.WriteStatistics,
		mem:             sharedAllocator,
		logger:          logger.With().Str("component", "archive").Logger(),
	}
}

func compressionCodec(name string) compress.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// ColumnNames returns a unique, non-empty column name for every curve.
// Blank mnemonics become curve_<index>; repeats (ignoring case) get a _<n>
// suffix starting at 2.
func ColumnNames(curves []las.CurveInfo) []string {
	names := make([]string, len(curves))
	used := make(map[string]bool, len(curves))
	for i, c := range curves {
		base := c.Mnemonic
		if base == "" {
			base = "curve_" + strconv.Itoa(i)
		}
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

// Schema builds the Arrow schema for doc.
func Schema(doc *las.WellDocument) *arrow.Schema {
	curves := doc.Curves()
	names := ColumnNames(curves)

	fields := make([]arrow.Field, len(curves))
	for i, c := range curves {
		fields[i] = arrow.Field{
			Name:     names[i],
			Type:     arrow.PrimitiveTypes.Float64,
			Nullable: true,
			Metadata: arrow.NewMetadata(
				[]string{MetaMnemonic, MetaUnit},
				[]string{c.Mnemonic, c.Unit},
			),
		}
	}

	keys := []string{MetaCurves}
	values := []string{strconv.Itoa(len(curves))}
	if name := doc.WellName(); name != "" {
		keys = append(keys, MetaWellName)
		values = append(values, name)
	}
	if null, ok := doc.NullValue(); ok {
		keys = append(keys, MetaNullValue)
		values = append(values, strconv.FormatFloat(null, 'f', -1, 64))
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md)
}

// WriteParquet encodes the document's data as a Parquet file. Samples equal
// to the declared NULL value, and NaN, are written as nulls.
func (w *Writer) WriteParquet(doc *las.WellDocument) ([]byte, error) {
	schema := Schema(doc)
	table := doc.Data()
	null, hasNull := doc.NullValue()

	arrays := make([]arrow.Array, len(schema.Fields()))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()

	for i := range arrays {
		builder := array.NewFloat64Builder(w.mem)
		samples := table.Curve(i)
		builder.Reserve(len(samples))
		for _, v := range samples {
			if math.IsNaN(v) || (hasNull && v == null) {
				builder.AppendNull()
				continue
			}
			builder.Append(v)
		}
		arrays[i] = builder.NewArray()
		builder.Release()
	}

	record := array.NewRecord(schema, arrays, int64(table.SampleCount))
	defer record.Release()

	var buf bytes.Buffer

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(w.compression),
		parquet.WithDictionaryDefault(w.useDictionary),
		parquet.WithStats(w.writeStatistics),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	w.logger.Debug().
		Int("columns", len(schema.Fields())).
		Int("rows", table.SampleCount).
		Int("size", buf.Len()).
		Msg("Wrote Parquet archive")

	return buf.Bytes(), nil
}
