package rcs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HistoryFile is one RCS file found under the conversion root.
type HistoryFile struct {
	// RCSPath is the absolute path of the history file.
	RCSPath string
	// WorkPath is the slash-separated working path relative to the root.
	WorkPath string
	// Attic marks a CVS file kept in an Attic directory.
	Attic bool
}

const rcsSuffix = ",v"

// WalkHistoryFiles finds every RCS file under root: files ending in ,v and
// any regular file inside an RCS/ directory. Files in RCS/ and Attic/
// directories map to the working path of their parent directory. When a
// live file and an Attic copy share a working path the live file wins, and
// a ,v file wins over a bare one.
func WalkHistoryFiles(root string) ([]HistoryFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	byWork := make(map[string]HistoryFile)
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), rcsSuffix) && filepath.Base(filepath.Dir(path)) != "RCS" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hf := HistoryFile{RCSPath: path}
		hf.WorkPath, hf.Attic = workPath(rel)
		if prev, dup := byWork[hf.WorkPath]; dup && rank(prev) >= rank(hf) {
			return nil
		}
		byWork[hf.WorkPath] = hf
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]HistoryFile, 0, len(byWork))
	for _, hf := range byWork {
		files = append(files, hf)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].WorkPath < files[j].WorkPath })
	return files, nil
}

func rank(hf HistoryFile) int {
	r := 0
	if !hf.Attic {
		r += 2
	}
	if strings.HasSuffix(hf.RCSPath, rcsSuffix) {
		r++
	}
	return r
}

// workPath strips the ,v suffix and any RCS or Attic directory from a path
// relative to the root.
func workPath(rel string) (string, bool) {
	dir, name := filepath.Split(strings.TrimSuffix(rel, rcsSuffix))
	dir = filepath.Clean(dir)
	attic := false
	switch filepath.Base(dir) {
	case "RCS":
		dir = filepath.Dir(dir)
	case "Attic":
		dir = filepath.Dir(dir)
		attic = true
	}
	return filepath.ToSlash(filepath.Join(dir, name)), attic
}

// shouldSkipDir returns true for directories that never hold project history
func shouldSkipDir(name string) bool {
	switch name {
	case ".git", ".hg", ".svn", "CVSROOT":
		return true
	}
	return false
}
