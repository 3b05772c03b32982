package lines

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"toolbox/internal/dispatch"
)

// Source yields the non-blank lines of a reader, trimmed. Lines starting
// with '#' are comments.
type Source struct {
	path    string
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewSource reads from r. The expected count is not computable for a plain
// reader.
func NewSource(r io.Reader) *Source {
	return &Source{scanner: bufio.NewScanner(r)}
}

// Open reads the file at path and can count its missions up front.
func Open(path string) (*Source, error) {
	clean := filepath.Clean(path)
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open missions file: %w", err)
	}
	return &Source{path: clean, scanner: bufio.NewScanner(f), closer: f}, nil
}

func (s *Source) GetNext(ctx context.Context) (string, bool, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if line, ok := mission(s.scanner.Text()); ok {
			return line, true, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", false, fmt.Errorf("read missions: %w", err)
	}
	return "", false, nil
}

// ComputeExpectedCount counts the missions of the file in a second pass.
func (s *Source) ComputeExpectedCount(ctx context.Context) (int, error) {
	if s.path == "" {
		return dispatch.NotComputable, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("count missions: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, ok := mission(sc.Text()); ok {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("count missions: %w", err)
	}
	return n, nil
}

func (s *Source) Finalize(context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func mission(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	return line, true
}

// EchoTask writes each mission on its own line. Clones share the writer.
type EchoTask struct {
	Prefix string

	out io.Writer
	mu  *sync.Mutex
}

func NewEchoTask(out io.Writer, prefix string) *EchoTask {
	return &EchoTask{Prefix: prefix, out: out, mu: &sync.Mutex{}}
}

func (t *EchoTask) Do(_ context.Context, line string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.out, "%s%s\n", t.Prefix, line); err != nil {
		return 0, err
	}
	return 1, nil
}

func (t *EchoTask) NewOne() dispatch.Task[string] {
	c := *t
	return &c
}
