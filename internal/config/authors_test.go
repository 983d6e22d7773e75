package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/emit"
)

const sampleAuthors = `
alice: "Alice Liddell <alice@example.org>"
bob:
  name: Bob Builder
  email: bob@example.org
carol:
  name: Carol
`

func TestAuthors_Read(t *testing.T) {
	a := NewAuthors("corp.example")
	require.NoError(t, a.Read(strings.NewReader(sampleAuthors)))
	assert.Equal(t, 3, a.Len())

	tests := []struct {
		login string
		want  emit.Signature
	}{
		{"alice", emit.Signature{Name: "Alice Liddell", Email: "alice@example.org"}},
		{"bob", emit.Signature{Name: "Bob Builder", Email: "bob@example.org"}},
		{"carol", emit.Signature{Name: "Carol", Email: "carol@corp.example"}},
		{"dave", emit.Signature{Name: "dave", Email: "dave@corp.example"}},
		{"erin@elsewhere", emit.Signature{Name: "erin@elsewhere", Email: "erin@elsewhere"}},
	}
	for _, tt := range tests {
		t.Run(tt.login, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Resolve(tt.login))
		})
	}

	assert.Equal(t, []string{"dave", "zed"}, a.Missing([]string{"zed", "alice", "dave"}))
}

func TestAuthors_ReadErrors(t *testing.T) {
	a := NewAuthors("x")
	assert.Error(t, a.Read(strings.NewReader(`alice: "no address here"`)))
	assert.Error(t, a.Read(strings.NewReader(`[not, a, map]`)))
	assert.NoError(t, a.Read(strings.NewReader("")))
}

func TestLoadAuthors(t *testing.T) {
	a, err := LoadAuthors("", "example.org")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Len())

	path := filepath.Join(t.TempDir(), "authors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleAuthors), 0o644))
	a, err = LoadAuthors(path, "example.org")
	require.NoError(t, err)
	assert.Equal(t, "Bob Builder", a.Resolve("bob").Name)

	_, err = LoadAuthors(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestWriteAuthorsTemplate_RoundTrips(t *testing.T) {
	a := NewAuthors("example.org")
	require.NoError(t, a.Read(strings.NewReader(`alice: "Alice Liddell <alice@example.org>"`)))

	var buf bytes.Buffer
	require.NoError(t, WriteAuthorsTemplate(&buf, []string{"zed", "alice"}, a))
	assert.Equal(t, "alice: \"Alice Liddell <alice@example.org>\"\nzed: \"zed <zed@example.org>\"\n", buf.String())

	back := NewAuthors("")
	require.NoError(t, back.Read(&buf))
	assert.Equal(t, a.Resolve("alice"), back.Resolve("alice"))
	assert.Equal(t, emit.Signature{Name: "zed", Email: "zed@example.org"}, back.Resolve("zed"))
}
