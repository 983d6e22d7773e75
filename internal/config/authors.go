package config

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/rcs2git/internal/emit"
)

// Authors maps RCS logins to commit identities.
type Authors struct {
	entries map[string]emit.Signature
	domain  string
}

type authorEntry struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// UnmarshalYAML accepts either "Full Name <email>" or {name, email}.
func (a *authorEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		addr, err := mail.ParseAddress(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %q is not of the form \"Name <email>\": %w", value.Line, value.Value, err)
		}
		a.Name, a.Email = addr.Name, addr.Address
		return nil
	}
	type plain authorEntry
	return value.Decode((*plain)(a))
}

// NewAuthors creates an author map. Logins without an entry get
// login@domain.
func NewAuthors(domain string) *Authors {
	return &Authors{entries: make(map[string]emit.Signature), domain: domain}
}

// LoadAuthors reads an author map file. An empty path yields an empty map.
func LoadAuthors(path, domain string) (*Authors, error) {
	a := NewAuthors(domain)
	if path == "" {
		return a, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open author map: %w", err)
	}
	defer f.Close()
	if err := a.Read(f); err != nil {
		return nil, fmt.Errorf("failed to read author map %s: %w", path, err)
	}
	return a, nil
}

// Read merges the entries of a YAML author map.
func (a *Authors) Read(r io.Reader) error {
	var raw map[string]authorEntry
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return err
	}
	for login, e := range raw {
		if e.Name == "" {
			e.Name = login
		}
		if e.Email == "" {
			e.Email = a.fallbackEmail(login)
		}
		a.entries[login] = emit.Signature{Name: e.Name, Email: e.Email}
	}
	return nil
}

// Resolve implements emit.AuthorMap.
func (a *Authors) Resolve(login string) emit.Signature {
	if sig, ok := a.entries[login]; ok {
		return sig
	}
	return emit.Signature{Name: login, Email: a.fallbackEmail(login)}
}

// Len returns the number of mapped logins.
func (a *Authors) Len() int {
	return len(a.entries)
}

// Missing returns the logins without an entry, sorted.
func (a *Authors) Missing(logins []string) []string {
	var out []string
	for _, l := range logins {
		if _, ok := a.entries[l]; !ok {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

func (a *Authors) fallbackEmail(login string) string {
	if a.domain == "" || strings.Contains(login, "@") {
		return login
	}
	return login + "@" + a.domain
}

// WriteAuthorsTemplate writes an author map with one entry per login,
// ready to be edited.
func WriteAuthorsTemplate(w io.Writer, logins []string, a *Authors) error {
	sorted := append([]string(nil), logins...)
	sort.Strings(sorted)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, login := range sorted {
		sig := a.Resolve(login)
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: login},
			&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("%s <%s>", sig.Name, sig.Email), Style: yaml.DoubleQuotedStyle},
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

var _ emit.AuthorMap = (*Authors)(nil)
