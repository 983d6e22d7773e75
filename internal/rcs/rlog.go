package rcs

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// RlogFile is the parsed rlog output for one RCS file.
type RlogFile struct {
	RCSFile     string
	WorkingFile string
	Head        string
	// DefaultBranch is the "branch:" header, set by CVS vendor imports.
	DefaultBranch string
	// Symbols maps symbolic names to revision or branch numbers.
	Symbols     map[string]string
	Description string
	Revisions   []RlogRevision
}

// RlogRevision is one revision block of rlog output.
type RlogRevision struct {
	Revision string
	Date     time.Time
	Author   string
	State    string
	Message  string
}

const (
	revisionSeparator = "----------------------------"
	fileSeparator     = "============================================================================="
)

// rlog prints either the classic "2020/02/19 10:00:00" UTC form or, with
// newer RCS versions, an ISO form with a zone offset.
var dateLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

// ParseRlog parses the output of rlog for one or more files.
func ParseRlog(r io.Reader) ([]*RlogFile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rlog output: %w", err)
	}

	p := &rlogParser{lines: lines}
	var files []*RlogFile
	for {
		p.skipBlank()
		if p.done() {
			return files, nil
		}
		f, err := p.file()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
}

type rlogParser struct {
	lines []string
	pos   int
}

func (p *rlogParser) done() bool {
	return p.pos >= len(p.lines)
}

func (p *rlogParser) peek() string {
	return p.lines[p.pos]
}

func (p *rlogParser) next() string {
	l := p.lines[p.pos]
	p.pos++
	return l
}

func (p *rlogParser) skipBlank() {
	for !p.done() && strings.TrimSpace(p.peek()) == "" {
		p.pos++
	}
}

func (p *rlogParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("rlog line %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *rlogParser) file() (*RlogFile, error) {
	f := &RlogFile{Symbols: make(map[string]string)}

	// Header up to the description block.
	for {
		if p.done() {
			return nil, p.errorf("unexpected end of output in header of %q", f.RCSFile)
		}
		line := p.next()
		switch {
		case strings.HasPrefix(line, "RCS file:"):
			f.RCSFile = strings.TrimSpace(strings.TrimPrefix(line, "RCS file:"))
		case strings.HasPrefix(line, "Working file:"):
			f.WorkingFile = strings.TrimSpace(strings.TrimPrefix(line, "Working file:"))
		case strings.HasPrefix(line, "head:"):
			f.Head = strings.TrimSpace(strings.TrimPrefix(line, "head:"))
		case strings.HasPrefix(line, "branch:"):
			f.DefaultBranch = strings.TrimSpace(strings.TrimPrefix(line, "branch:"))
		case strings.HasPrefix(line, "symbolic names:"):
			for !p.done() && strings.HasPrefix(p.peek(), "\t") {
				name, num, ok := strings.Cut(strings.TrimSpace(p.next()), ":")
				if !ok {
					return nil, p.errorf("malformed symbol line in %q", f.RCSFile)
				}
				f.Symbols[strings.TrimSpace(name)] = strings.TrimSpace(num)
			}
		case strings.HasPrefix(line, "description:"):
			return f, p.body(f)
		case line == fileSeparator:
			return f, nil
		}
	}
}

// body reads the description and revision blocks until the file separator.
func (p *rlogParser) body(f *RlogFile) error {
	var desc []string
	for !p.done() && !p.atBlockEnd() {
		desc = append(desc, p.next())
	}
	f.Description = strings.Join(desc, "\n")

	for !p.done() {
		if p.next() == fileSeparator {
			return nil
		}
		rev, err := p.revision()
		if err != nil {
			return fmt.Errorf("%s: %w", f.RCSFile, err)
		}
		f.Revisions = append(f.Revisions, rev)
	}
	return nil
}

// atBlockEnd reports whether the current line ends a message: a file
// separator, or a revision separator followed by a revision header.
func (p *rlogParser) atBlockEnd() bool {
	line := p.peek()
	if line == fileSeparator {
		return true
	}
	if line != revisionSeparator {
		return false
	}
	return p.pos+1 < len(p.lines) && strings.HasPrefix(p.lines[p.pos+1], "revision ")
}

func (p *rlogParser) revision() (RlogRevision, error) {
	var rev RlogRevision
	if p.done() {
		return rev, p.errorf("missing revision header")
	}
	header := p.next()
	if !strings.HasPrefix(header, "revision ") {
		return rev, p.errorf("expected revision header, got %q", header)
	}
	rev.Revision = strings.Fields(strings.TrimPrefix(header, "revision "))[0]

	if p.done() || !strings.HasPrefix(p.peek(), "date:") {
		return rev, p.errorf("revision %s has no date line", rev.Revision)
	}
	if err := parseDateLine(p.next(), &rev); err != nil {
		return rev, p.errorf("revision %s: %v", rev.Revision, err)
	}
	if !p.done() && strings.HasPrefix(p.peek(), "branches:") {
		p.next()
	}

	var msg []string
	for !p.done() && !p.atBlockEnd() {
		msg = append(msg, p.next())
	}
	rev.Message = strings.Join(msg, "\n")
	return rev, nil
}

// parseDateLine reads "date: ...;  author: ...;  state: ...;  lines: ..."
func parseDateLine(line string, rev *RlogRevision) error {
	for _, field := range strings.Split(line, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "date":
			t, err := parseDate(value)
			if err != nil {
				return err
			}
			rev.Date = t
		case "author":
			rev.Author = value
		case "state":
			rev.State = value
		}
	}
	if rev.Date.IsZero() {
		return fmt.Errorf("no date in %q", line)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
