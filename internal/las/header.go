package las

import (
	"fmt"
	"strings"
)

// Quadruple is one parsed header line: MNEM.UNIT VALUE : DESCRIPTION.
type Quadruple struct {
	Mnemonic    string `json:"mnemonic"`
	Unit        string `json:"unit"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// ParseQuadruple parses one non-empty, non-comment header line.
//
// The split order is fixed: first '.' ends the mnemonic, then the first ':'
// starts the description, then the first space separates the unit from the
// value. Units therefore must follow the dot directly; "DEPT. M" has an
// empty unit and value "M".
func ParseQuadruple(line string) (Quadruple, error) {
	mnemonic, rest, ok := strings.Cut(line, ".")
	if !ok {
		return Quadruple{}, ErrMalformedHeaderLine
	}
	valueUnit, description, _ := strings.Cut(rest, ":")
	unit, value, _ := strings.Cut(valueUnit, " ")

	return Quadruple{
		Mnemonic:    strings.TrimSpace(mnemonic),
		Unit:        strings.TrimSpace(unit),
		Value:       strings.TrimSpace(value),
		Description: strings.TrimSpace(description),
	}, nil
}

// HeaderSegment is a parsed header segment. A segment holds either
// quadruples or, for the ~O segment, opaque free text; never both.
type HeaderSegment struct {
	Kind       SegmentKind `json:"kind"`
	Name       string      `json:"name"`
	Quadruples []Quadruple `json:"quadruples"`
	FreeText   string      `json:"free_text,omitempty"`
}

// IsFreeText reports whether the segment was kept as opaque text.
func (s *HeaderSegment) IsFreeText() bool {
	return s.FreeText != ""
}

// Find returns the first quadruple whose mnemonic matches, ignoring case.
func (s *HeaderSegment) Find(mnemonic string) (Quadruple, bool) {
	for _, q := range s.Quadruples {
		if strings.EqualFold(q.Mnemonic, mnemonic) {
			return q, true
		}
	}
	return Quadruple{}, false
}

// ParseSegment turns a raw segment into a HeaderSegment.
//
// Free-text segments are stored verbatim with an empty name. Otherwise line 0
// becomes the name and every following line that is neither blank nor a '#'
// comment is parsed as a quadruple. CRLF, LF and lone CR line endings are all
// accepted.
//
// A segment is empty when nothing but whitespace follows its label line; this
// applies to free-text segments too. In strict mode an empty segment fails
// with ErrEmptySegment and the first malformed line aborts the segment.
// Otherwise an empty segment is kept with no quadruples and malformed lines
// are skipped and returned.
func ParseSegment(raw RawSegment, freeText, strict bool) (HeaderSegment, []*LineError, error) {
	if strings.TrimSpace(raw.Text) == "" {
		if strict {
			return HeaderSegment{}, nil, ErrEmptySegment
		}
		return HeaderSegment{}, nil, nil
	}
	if strict && emptyBody(raw.Text) {
		return HeaderSegment{}, nil, fmt.Errorf("%q: %w", firstLine(raw.Text), ErrEmptySegment)
	}

	if freeText {
		return HeaderSegment{Kind: raw.Kind, FreeText: raw.Text}, nil, nil
	}

	lines := splitLines(raw.Text)
	seg := HeaderSegment{
		Kind:       raw.Kind,
		Name:       lines[0],
		Quadruples: make([]Quadruple, 0, len(lines)-1),
	}

	var skipped []*LineError
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || line[0] == '#' {
			continue
		}
		q, err := ParseQuadruple(line)
		if err != nil {
			lineErr := &LineError{Segment: seg.Name, Line: i + 1, Text: line, Err: err}
			if strict {
				return HeaderSegment{}, nil, lineErr
			}
			skipped = append(skipped, lineErr)
			continue
		}
		seg.Quadruples = append(seg.Quadruples, q)
	}
	return seg, skipped, nil
}

// emptyBody reports whether every line after the label line is blank.
func emptyBody(text string) bool {
	lines := splitLines(text)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

// splitLines splits on CRLF, LF or CR.
func splitLines(s string) []string {
	if strings.IndexByte(s, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	return strings.Split(s, "\n")
}
