package las

import (
	"fmt"
	"strings"
)

// maxWarnings caps the warnings kept on a document.
const maxWarnings = 100

// Options controls how strictly a file is parsed.
type Options struct {
	// Strict fails the whole parse on an empty segment or a malformed header
	// line. When false those are skipped and reported as warnings.
	Strict bool

	// UseNullValue fills unparseable data tokens with the NULL value declared
	// in the ~W segment. When false, or when no NULL is declared,
	// DefaultNullValue is used.
	UseNullValue     bool
	DefaultNullValue float64

	// ValidateDepth requires the first curve to be a depth or index curve.
	ValidateDepth bool
}

// DefaultOptions returns permissive parsing with NULL substitution.
func DefaultOptions() Options {
	return Options{
		Strict:           false,
		UseNullValue:     true,
		DefaultNullValue: 0,
		ValidateDepth:    false,
	}
}

// depthMnemonics are accepted as column 0 when ValidateDepth is set.
var depthMnemonics = map[string]bool{
	"DEPT":  true,
	"DEPTH": true,
	"TIME":  true,
	"INDEX": true,
}

// Parser builds WellDocuments from LAS text.
type Parser struct {
	opts Options
}

// NewParser creates a parser with the given options.
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Options returns the parser's options.
func (p *Parser) Options() Options {
	return p.opts
}

// Parse parses LAS text with default options.
func Parse(text string) (*WellDocument, error) {
	return NewParser(DefaultOptions()).Parse(text)
}

// ParseBytes decodes raw file bytes (see DecodeText) and parses them.
func (p *Parser) ParseBytes(data []byte) (*WellDocument, error) {
	return p.Parse(DecodeText(data))
}

// Parse splits text into segments, parses every header segment, then decodes
// the first ~A segment using the curve count of the first ~C segment.
func (p *Parser) Parse(text string) (*WellDocument, error) {
	var (
		segments  []HeaderSegment
		warnings  warningList
		dataText  string
		hasData   bool
		curveSeen bool
		dataFirst bool
	)

	for _, raw := range SplitSegments(text) {
		if raw.Kind == KindData {
			if hasData {
				warnings.add("additional ~A segment ignored")
				continue
			}
			dataText, hasData = raw.Text, true
			dataFirst = !curveSeen
			continue
		}

		seg, skipped, err := ParseSegment(raw, raw.Kind == KindOther, p.opts.Strict)
		if err != nil {
			return nil, fmt.Errorf("parse %s segment: %w", raw.Kind, err)
		}
		for _, lineErr := range skipped {
			warnings.add(lineErr.Error())
		}
		if raw.Kind == KindUnknown {
			warnings.add(fmt.Sprintf("unrecognised segment label %q kept as header", firstLine(raw.Text)))
		}
		if raw.Kind == KindCurve {
			curveSeen = true
		}
		segments = append(segments, seg)
	}

	curveCount := 0
	for i := range segments {
		if segments[i].Kind == KindCurve {
			curveCount = len(segments[i].Quadruples)
			break
		}
	}

	if p.opts.ValidateDepth && curveCount > 0 {
		if err := validateDepth(segments); err != nil {
			return nil, err
		}
	}

	var table *LogTable
	if hasData {
		if dataFirst {
			return nil, fmt.Errorf("~A segment precedes ~C segment: %w", ErrMissingCurveCount)
		}
		var err error
		table, err = DecodeLogData(curveCount, dataText, p.fillValue(segments))
		if err != nil {
			return nil, fmt.Errorf("decode ~A segment: %w", err)
		}
		if table.InvalidTokens > 0 {
			warnings.add(fmt.Sprintf("%d non-numeric data tokens replaced with null value", table.InvalidTokens))
		}
		if table.DroppedTokens > 0 {
			warnings.add(fmt.Sprintf("%d trailing data tokens did not complete a row and were dropped", table.DroppedTokens))
		}
	} else {
		table = newLogTable(curveCount, 0)
	}

	return newWellDocument(segments, table, warnings.list()), nil
}

// fillValue is the value recorded for unparseable data tokens.
func (p *Parser) fillValue(segments []HeaderSegment) float64 {
	if !p.opts.UseNullValue {
		return p.opts.DefaultNullValue
	}
	if v, ok := declaredNull(segments); ok {
		return v
	}
	return p.opts.DefaultNullValue
}

func validateDepth(segments []HeaderSegment) error {
	for i := range segments {
		if segments[i].Kind != KindCurve {
			continue
		}
		first := strings.ToUpper(segments[i].Quadruples[0].Mnemonic)
		if !depthMnemonics[first] {
			return fmt.Errorf("curve %q: %w", segments[i].Quadruples[0].Mnemonic, ErrDepthColumnAssumption)
		}
		return nil
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// warningList keeps the first maxWarnings messages and a suppressed count.
type warningList struct {
	items      []string
	suppressed int
}

func (w *warningList) add(msg string) {
	if len(w.items) < maxWarnings {
		w.items = append(w.items, msg)
		return
	}
	w.suppressed++
}

func (w *warningList) list() []string {
	if w.suppressed > 0 {
		return append(w.items, fmt.Sprintf("... and %d more warnings suppressed", w.suppressed))
	}
	return w.items
}
