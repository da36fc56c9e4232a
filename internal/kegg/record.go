// Package kegg downloads KEGG compound and reaction entries through the KEGG
// REST API and turns them into MINE-shaped records.
//
// The flat-file entries are parsed into key/token lists by ParseRecord, then
// formatted by FormatCompound and FormatReaction. SortReactions derives the
// Reactant_in and Product_of lists that the network expansion relies on.
package kegg

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrInvalidID is returned for ids that are not KEGG compound (C#####)
	// or reaction (R#####) ids.
	ErrInvalidID = errors.New("invalid KEGG id")

	// ErrMissingEntry is returned for entries without an ENTRY line.
	ErrMissingEntry = errors.New("KEGG entry has no ENTRY")

	// ErrMissingEquation is returned for reaction entries without an EQUATION.
	ErrMissingEquation = errors.New("KEGG reaction has no EQUATION")

	// ErrNotFound is returned when the KEGG server has no entry for an id.
	ErrNotFound = errors.New("KEGG entry not found")
)

// recordEnd terminates a flat-file entry.
const recordEnd = "///"

// ParseRecord splits a KEGG flat-file entry into its keys and the
// whitespace separated tokens that follow them. A line starting with a
// space continues the previous key; a repeated key is extended. Parsing
// stops at the first "///", so only the first entry of text is read.
func ParseRecord(text string, log *zap.Logger) map[string][]string {
	if log == nil {
		log = zap.NewNop()
	}

	record := make(map[string][]string)
	key := ""
	for _, line := range strings.Split(text, "\n") {
		if line == recordEnd {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if !strings.HasPrefix(line, " ") {
			key = fields[0]
			record[key] = append(record[key], fields[1:]...)
			continue
		}
		if key == "" {
			log.Warn("KEGG text line has no key", zap.String("line", line))
			continue
		}
		record[key] = append(record[key], fields...)
	}
	return record
}
