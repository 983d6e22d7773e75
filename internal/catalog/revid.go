package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// RevID is a file-local RCS revision number such as "1.4" or "1.2.2.1".
type RevID string

// BranchID is an RCS branch number: a revision number with an odd count of
// components, such as "1.2.2". The trunk of major version 1 is "1".
type BranchID string

// ParseRevID validates a dotted revision number. Revisions have an even,
// non-zero number of positive numeric components.
func ParseRevID(s string) (RevID, error) {
	parts, err := splitNumbers(s)
	if err != nil {
		return "", fmt.Errorf("invalid revision %q: %w", s, err)
	}
	if len(parts)%2 != 0 {
		return "", fmt.Errorf("invalid revision %q: odd number of components", s)
	}
	return RevID(s), nil
}

// ParseBranchID validates a branch number. The CVS "magic branch" form
// (1.2.0.2) is accepted and normalised to 1.2.2.
func ParseBranchID(s string) (BranchID, error) {
	parts, err := splitNumbers(s)
	if err != nil {
		return "", fmt.Errorf("invalid branch %q: %w", s, err)
	}
	if len(parts) >= 4 && len(parts)%2 == 0 && parts[len(parts)-2] == 0 {
		parts = append(parts[:len(parts)-2], parts[len(parts)-1])
	}
	if len(parts)%2 != 1 {
		return "", fmt.Errorf("invalid branch %q: even number of components", s)
	}
	return BranchID(joinNumbers(parts)), nil
}

// IsMagicBranch reports whether s is a CVS magic branch number (1.2.0.2).
func IsMagicBranch(s string) bool {
	parts, err := splitNumbers(s)
	if err != nil {
		return false
	}
	return len(parts) >= 4 && len(parts)%2 == 0 && parts[len(parts)-2] == 0
}

func splitNumbers(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("component %q is not a number", f)
		}
		parts[i] = n
	}
	return parts, nil
}

func joinNumbers(parts []int) string {
	fields := make([]string, len(parts))
	for i, n := range parts {
		fields[i] = strconv.Itoa(n)
	}
	return strings.Join(fields, ".")
}

// Parts returns the numeric components. Invalid revisions yield nil.
func (r RevID) Parts() []int {
	parts, err := splitNumbers(string(r))
	if err != nil {
		return nil
	}
	return parts
}

// IsTrunk reports whether the revision lives on the trunk (two components).
func (r RevID) IsTrunk() bool {
	return len(r.Parts()) == 2
}

// Branch returns the branch number the revision belongs to: "1" for 1.4,
// "1.2.2" for 1.2.2.1.
func (r RevID) Branch() BranchID {
	parts := r.Parts()
	if len(parts) == 0 {
		return ""
	}
	return BranchID(joinNumbers(parts[:len(parts)-1]))
}

// BranchPoint returns the revision a branch revision forks from (1.2 for
// 1.2.2.1). Trunk revisions have no branch point.
func (r RevID) BranchPoint() RevID {
	parts := r.Parts()
	if len(parts) <= 2 {
		return ""
	}
	return RevID(joinNumbers(parts[:len(parts)-2]))
}

// Compare orders revisions numerically component by component; a prefix
// sorts first. It returns -1, 0 or 1.
func (r RevID) Compare(o RevID) int {
	a, b := r.Parts(), o.Parts()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Depth is the number of branch levels below the trunk (0 for trunk).
func (b BranchID) Depth() int {
	n := strings.Count(string(b), ".")
	return n / 2
}

// BranchPoint returns the revision a branch forks from (1.2 for 1.2.2).
func (b BranchID) BranchPoint() RevID {
	i := strings.LastIndex(string(b), ".")
	if i < 0 {
		return ""
	}
	return RevID(b[:i])
}

// Contains reports whether revision r lies directly on branch b.
func (b BranchID) Contains(r RevID) bool {
	return r.Branch() == b
}
