package device

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Iron-Ham/usbipd-manager/internal/errors"
	"github.com/Iron-Ham/usbipd-manager/internal/logging"
)

// headerLines is the banner plus column header printed before the first row.
const headerLines = 2

// persistedMarker starts the second section of list output, which is not parsed.
const persistedMarker = "Persisted:"

// minFields is the smallest token count of a usable row:
// bus id, VID:PID, at least one description word, at least one state word.
const minFields = 4

// statePrefixes are the leading words of every state the backend prints.
var statePrefixes = []string{"Not", "Attached", "Shared"}

// Parser converts list output to records.
type Parser struct {
	logger *logging.Logger
}

// NewParser creates a Parser. A nil logger discards malformed-row notices.
func NewParser(logger *logging.Logger) *Parser {
	return &Parser{logger: logging.OrNop(logger).WithComponent("parser")}
}

// Parse reads the connected-devices section of list output. Rows with too
// few fields are logged and skipped. An empty or non-UTF-8 stream, or one
// without a header, is a *errors.ParseError so callers can tell "no devices"
// apart from "could not poll".
func (p *Parser) Parse(out []byte) ([]Record, error) {
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil, errors.NewParseError("cannot read list output", errors.ErrNoOutput)
	}
	if !utf8.Valid(out) {
		return nil, errors.NewParseError("cannot read list output", errors.ErrUndecodable)
	}

	lines := strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n")
	if len(lines) < headerLines {
		return nil, errors.NewParseError("cannot read list output", errors.ErrMissingHeader)
	}

	records := make([]Record, 0, len(lines)-headerLines)
	for i := headerLines; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || strings.Contains(line, persistedMarker) {
			break
		}

		rec, ok := parseRow(line)
		if !ok {
			p.logger.Warn("skipping malformed list row", "line", i+1, "text", line)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// parseRow splits one row. The description runs from the third token up to
// the first token with a state prefix; that token and everything after it
// form the state column. A description word that happens to carry a state
// prefix therefore ends the description early and the row classifies as
// Unknown.
func parseRow(line string) (Record, bool) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return Record{}, false
	}

	split := len(fields)
	for i := 2; i < len(fields); i++ {
		if hasStatePrefix(fields[i]) {
			split = i
			break
		}
	}

	rec := Record{
		BusID:       fields[0],
		VIDPID:      fields[1],
		Description: strings.Join(fields[2:split], " "),
		RawState:    strings.Join(fields[split:], " "),
	}
	rec.State = ParseState(rec.RawState)
	return rec, true
}

func hasStatePrefix(token string) bool {
	for _, prefix := range statePrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// Source produces raw list output from the backend.
type Source interface {
	ListOutput(ctx context.Context) ([]byte, error)
}

// Lister polls a Source and parses the result.
type Lister struct {
	source Source
	parser *Parser
}

// NewLister creates a Lister.
func NewLister(source Source, logger *logging.Logger) *Lister {
	return &Lister{source: source, parser: NewParser(logger)}
}

// List runs one poll.
func (l *Lister) List(ctx context.Context) ([]Record, error) {
	out, err := l.source.ListOutput(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	return l.parser.Parse(out)
}
