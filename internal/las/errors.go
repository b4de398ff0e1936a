package las

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHeaderLine is returned when a header line has no '.' separating the mnemonic.
	ErrMalformedHeaderLine = errors.New("malformed header line: missing '.' after mnemonic")

	// ErrMissingCurveCount is returned when the data segment cannot be reshaped because
	// no curve segment (or an empty one) precedes it.
	ErrMissingCurveCount = errors.New("curve count unknown: no curve definitions precede the data segment")

	// ErrCurveSegmentMissing is returned when curve metadata is required but the file has no ~C segment.
	ErrCurveSegmentMissing = errors.New("curve segment (~C) not found")

	// ErrEmptySegment is returned in strict mode for a segment with no content.
	ErrEmptySegment = errors.New("empty segment")

	// ErrDepthColumnAssumption is returned when depth validation is enabled and
	// the first curve is not a recognised index curve.
	ErrDepthColumnAssumption = errors.New("first curve is not a depth or index curve")
)

// LineError locates a header parse failure inside its segment.
type LineError struct {
	Segment string // segment label line, e.g. "~Well Information"
	Line    int    // 1-based line number within the segment
	Text    string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("segment %q line %d: %v: %q", e.Segment, e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error {
	return e.Err
}
