package kegg

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Benny93/minet-go/internal/mine"
)

// ReadCompoundIDs reads one KEGG compound id per line. Blank lines are
// skipped; any other line that is not a compound id is an error.
func ReadCompoundIDs(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		if !mine.IsKEGGCompoundID(id) {
			return nil, fmt.Errorf("line %d: %q: %w", line, id, ErrInvalidID)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading compound ids: %w", err)
	}
	return ids, nil
}
