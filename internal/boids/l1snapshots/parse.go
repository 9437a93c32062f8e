package l1snapshots

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedLine is wrapped by every ParseError.
var ErrMalformedLine = errors.New("l1snapshots: line does not match snapshot grammar")

// Grammar, one snapshot per line:
//
//	line   = number ":" { number "," number ";" }
//	number = [+-] ( digits [ "." [digits] ] | "." digits ) [ (e|E) [+-] digits ]
//
// The pair list is position order, which is the agent index.
const numberPattern = `[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`

var (
	snapshotLine = regexp.MustCompile(`^(` + numberPattern + `):((?:` + numberPattern + `,` + numberPattern + `;)*)$`)
	pairPattern  = regexp.MustCompile(`(` + numberPattern + `),(` + numberPattern + `);`)
)

// maxLineBytes bounds a single snapshot line read by ParseReader.
const maxLineBytes = 64 * 1024 * 1024

// ParseError reports the 0-based index of a line that could not be parsed.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrMalformedLine) {
		return fmt.Sprintf("could not interpret line %d of input: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("could not interpret line %d of input", e.Line)
}

// Unwrap lets errors.Is match ErrMalformedLine and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil || errors.Is(e.Err, ErrMalformedLine) {
		return []error{ErrMalformedLine}
	}
	return []error{ErrMalformedLine, e.Err}
}

// ParseLine parses a single snapshot line. Surrounding whitespace and a
// trailing carriage return are ignored.
func ParseLine(line string) (Snapshot, error) {
	line = strings.TrimSpace(line)
	m := snapshotLine.FindStringSubmatch(line)
	if m == nil {
		return Snapshot{}, ErrMalformedLine
	}

	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("timestamp %q: %w", m[1], err)
	}

	pairs := pairPattern.FindAllStringSubmatch(m[2], -1)
	positions := make([]Position, 0, len(pairs))
	for i, pair := range pairs {
		x, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("agent %d x %q: %w", i, pair[1], err)
		}
		y, err := strconv.ParseFloat(pair[2], 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("agent %d y %q: %w", i, pair[2], err)
		}
		positions = append(positions, Position{AgentIndex: i, X: x, Y: y})
	}

	return Snapshot{Timestamp: ts, Positions: positions}, nil
}

// ParseLines turns an ordered sequence of lines into snapshots. A blank line
// is tolerated only as the final line. The first malformed line aborts the
// parse with a *ParseError; no partial result is returned.
func ParseLines(lines []string) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" && i == len(lines)-1 {
			break
		}
		s, err := ParseLine(line)
		if err != nil {
			return nil, &ParseError{Line: i, Text: line, Err: err}
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// ParseReader reads r to EOF and parses it with ParseLines.
func ParseReader(r io.Reader) ([]Snapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot lines: %w", err)
	}
	return ParseLines(lines)
}
