// Package las parses Log ASCII Standard (LAS 1.2/2.0) well-log files.
//
// A LAS file is a sequence of '~' delimited segments, each labelled by its
// first character:
//
//	~V  version information     ~C  curve definitions (one per data column)
//	~W  well information        ~O  other, free text
//	~P  parameters              ~A  ASCII log data
//
// Header lines follow the MNEM.UNIT VALUE : DESCRIPTION layout. The data
// segment holds whitespace separated samples, one row per depth step and one
// column per curve, with column 0 conventionally the depth curve.
//
// The package turns file text into a WellDocument and thins it into a
// JSON (or msgpack) projection suitable for charting.
package las

import (
	"fmt"
	"strings"
)

// SegmentDelimiter separates segments in a LAS file.
const SegmentDelimiter = "~"

// SegmentKind classifies a segment by its leading label character.
type SegmentKind int

const (
	KindUnknown SegmentKind = iota
	KindVersion
	KindWell
	KindParameter
	KindCurve
	KindOther
	KindData
)

func (k SegmentKind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindWell:
		return "well"
	case KindParameter:
		return "parameter"
	case KindCurve:
		return "curve"
	case KindOther:
		return "other"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k SegmentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *SegmentKind) UnmarshalText(text []byte) error {
	for kind := KindUnknown; kind <= KindData; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown segment kind %q", text)
}

// ClassifyLabel maps a segment label character to its kind. Matching is
// case-sensitive; anything unrecognised is KindUnknown.
func ClassifyLabel(label byte) SegmentKind {
	switch label {
	case 'V':
		return KindVersion
	case 'W':
		return KindWell
	case 'P':
		return KindParameter
	case 'C':
		return KindCurve
	case 'O':
		return KindOther
	case 'A':
		return KindData
	default:
		return KindUnknown
	}
}

// RawSegment is one classified, still unparsed segment.
type RawSegment struct {
	Kind SegmentKind
	Text string // segment text without the leading '~'
}

// SplitSegments splits file text on '~', drops segments that are empty after
// trimming and classifies the rest. Source order is preserved and unknown
// labels are kept.
func SplitSegments(text string) []RawSegment {
	parts := strings.Split(text, SegmentDelimiter)
	segments := make([]RawSegment, 0, len(parts))
	for _, part := range parts {
		body := strings.TrimLeft(part, " \t\r\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		segments = append(segments, RawSegment{
			Kind: ClassifyLabel(body[0]),
			Text: body,
		})
	}
	return segments
}
