package checkpoint

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/directory"
)

// Encode writes entries in the two-line text format: the name on one line,
// the location on the next. Names or locations containing a line break
// corrupt the file; entries are written as-is.
func Encode(w io.Writer, entries []directory.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\n%s\n", e.Name, e.Location); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads the two-line text format. A trailing name without a location
// line is dropped with a warning. Carriage returns before line feeds are
// ignored.
func Decode(r io.Reader) ([]directory.Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		entries []directory.Entry
		name    string
		odd     bool
	)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if !odd {
			name = line
			odd = true
			continue
		}
		entries = append(entries, directory.Entry{Name: name, Location: line})
		odd = false
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if odd {
		logger.Warn("Checkpoint ends with name %q and no location, entry dropped", name)
	}
	return entries, nil
}
