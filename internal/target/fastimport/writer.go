// Package fastimport renders the converted history as a git fast-import
// stream.
package fastimport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rohankatakam/rcs2git/internal/emit"
)

// Writer emits fast-import commands. Commit ids are marks (":1", ":2", ...).
type Writer struct {
	mu   sync.Mutex
	out  *bufio.Writer
	mark int
}

// New creates a writer on out. Call Flush when the emission is done. The
// stream opens with "feature done", so git fast-import rejects a stream that
// stops before Flush.
func New(out io.Writer) *Writer {
	w := &Writer{out: bufio.NewWriterSize(out, 1<<16)}
	w.out.WriteString("feature done\n")
	return w
}

// CreateCommit writes a commit command with inline file data. Only the
// changed and carried paths are listed; fast-import starts each commit
// from the tree of its parent.
func (w *Writer) CreateCommit(ctx context.Context, req *emit.CommitRequest) (emit.CommitID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.mark++
	mark := ":" + strconv.Itoa(w.mark)

	fmt.Fprintf(w.out, "commit %s\n", refName("heads", req.Branch))
	fmt.Fprintf(w.out, "mark %s\n", mark)
	ident := identity(req.Author)
	fmt.Fprintf(w.out, "author %s\n", ident)
	fmt.Fprintf(w.out, "committer %s\n", ident)
	w.data([]byte(req.Message))
	if req.Parent != "" {
		fmt.Fprintf(w.out, "from %s\n", req.Parent)
	}
	w.files(req.Carried)
	w.files(req.Changes)
	if err := w.out.WriteByte('\n'); err != nil {
		return "", fmt.Errorf("write commit %s: %w", mark, err)
	}
	return emit.CommitID(mark), nil
}

// CreateBranchRef writes a reset of refs/heads/<name>.
func (w *Writer) CreateBranchRef(_ context.Context, name string, target emit.CommitID) error {
	return w.reset(refName("heads", name), target)
}

// CreateTag writes a reset of refs/tags/<name>, a lightweight tag.
func (w *Writer) CreateTag(_ context.Context, name string, target emit.CommitID) error {
	return w.reset(refName("tags", name), target)
}

// Flush terminates the stream with "done" and writes any buffered commands.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.WriteString("done\n"); err != nil {
		return err
	}
	return w.out.Flush()
}

func (w *Writer) reset(ref string, target emit.CommitID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "reset %s\nfrom %s\n\n", ref, target)
	if err != nil {
		return fmt.Errorf("write reset %s: %w", ref, err)
	}
	return nil
}

func (w *Writer) files(changes map[string]emit.Change) {
	paths := make([]string, 0, len(changes))
	for p := range changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		ch := changes[p]
		if ch.Deleted {
			fmt.Fprintf(w.out, "D %s\n", quotePath(p))
			continue
		}
		fmt.Fprintf(w.out, "M 100644 inline %s\n", quotePath(p))
		w.data(ch.Content)
	}
}

func (w *Writer) data(b []byte) {
	fmt.Fprintf(w.out, "data %d\n", len(b))
	w.out.Write(b)
	w.out.WriteByte('\n')
}

func identity(s emit.Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

func refName(kind, name string) string {
	return "refs/" + kind + "/" + name
}

func quotePath(p string) string {
	if strings.HasPrefix(p, `"`) || strings.ContainsRune(p, '\n') {
		return strconv.Quote(p)
	}
	return p
}

var _ emit.Writer = (*Writer)(nil)
