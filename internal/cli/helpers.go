package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/tutu-network/classifier/internal/domain"
)

// newLineScanner creates a line scanner from a reader.
func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return s
}

// readLines returns every line of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	s := newLineScanner(r)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines, s.Err()
}

// stdinHasData reports whether in carries piped or redirected input: a
// FIFO or a regular file. Terminals, sockets and character devices such
// as /dev/null do not count. Readers that are not files count as piped.
func stdinHasData(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return in != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeNamedPipe != 0 || mode.IsRegular()
}

// shouldColorize reports whether w is a terminal that can render styling.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// collectItems gathers the batch in submission order: stdin lines (when
// piped), then the lines of each file, then each image argument.
func collectItems(stdin io.Reader, files, images []string) ([]domain.Item, error) {
	var lines []string

	if stdin != nil && stdinHasData(stdin) {
		l, err := readLines(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		lines = append(lines, l...)
	}

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		l, err := readLines(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		lines = append(lines, l...)
	}

	lines = append(lines, images...)

	items := domain.ItemsFromStrings(lines)
	if len(items) == 0 {
		return nil, domain.ErrNoItems
	}
	return items, nil
}
