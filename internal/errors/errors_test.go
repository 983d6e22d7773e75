package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		typ      ErrorType
		contains []string
	}{
		{
			name:     "malformed tree",
			err:      MalformedRevisionTree("src/a.c", "1.3", "parent revision 1.9 does not exist"),
			sentinel: ErrMalformedRevisionTree,
			typ:      ErrorTypeMalformedRevisionTree,
			contains: []string{"parent revision 1.9", "files: src/a.c", "revisions: 1.3"},
		},
		{
			name:     "ambiguous tag",
			err:      AmbiguousTagAssignment("REL_1", []string{"a.c", "b.c"}, []string{"1.2", "1.4"}),
			sentinel: ErrAmbiguousTagAssignment,
			typ:      ErrorTypeAmbiguousTagAssignment,
			contains: []string{`"REL_1"`, "a.c, b.c", "1.2, 1.4"},
		},
		{
			name:     "orphan branch",
			err:      OrphanBranch("GHOST", "fork revision missing", []string{"c.c"}, []string{"1.5.2"}),
			sentinel: ErrOrphanBranch,
			typ:      ErrorTypeOrphanBranch,
			contains: []string{`"GHOST"`, "fork revision missing"},
		},
		{
			name:     "empty candidate",
			err:      EmptyCommitCandidate(7),
			sentinel: ErrEmptyCommitCandidate,
			typ:      ErrorTypeEmptyCommitCandidate,
			contains: []string{"candidate 7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.typ, GetType(tt.err))
			assert.True(t, IsFatal(tt.err))
			for _, s := range tt.contains {
				assert.Contains(t, tt.err.Error(), s)
			}

			wrapped := fmt.Errorf("convert: %w", tt.err)
			assert.True(t, stderrors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.typ, GetType(wrapped))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeExternal, SeverityHigh, "nothing"))

	cause := stderrors.New("exit status 1")
	err := ExternalErrorf(cause, "co failed for %s", "a.c,v").WithLocations([]string{"a.c"}, []string{"1.2"})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsFatal(err))
	assert.Equal(t, "EXTERNAL", err.Type.String())

	detail := err.DetailedString()
	assert.Contains(t, detail, "[HIGH] [EXTERNAL] co failed for a.c,v")
	assert.Contains(t, detail, "Caused by: exit status 1")
	assert.Contains(t, detail, "files: [a.c]")
}

func TestGetTypeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, GetType(stderrors.New("plain")))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(stderrors.New("plain")))
	assert.Equal(t, ErrorTypeConfig, GetType(ConfigErrorf("bad %s", "value")))
}
