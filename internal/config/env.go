package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

// loadEnvFiles loads .env.local and .env from the nearest directory that
// has them, then ~/.rcs2git/.env. godotenv never overrides variables that
// are already set, so earlier files win.
func loadEnvFiles() []string {
	var loaded []string
	load := func(path string) {
		if _, err := os.Stat(path); err != nil {
			return
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}

	if dir, ok := findEnvDir(); ok {
		load(filepath.Join(dir, ".env.local"))
		load(filepath.Join(dir, ".env"))
	}
	if home, err := homedir.Dir(); err == nil {
		load(filepath.Join(home, ".rcs2git", ".env"))
	}
	return loaded
}

// findEnvDir searches the current and parent directories (max 5 levels)
// for a .env or .env.local file.
func findEnvDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	searchPath := cwd
	for i := 0; i < 5; i++ {
		for _, name := range []string{".env.local", ".env"} {
			if _, err := os.Stat(filepath.Join(searchPath, name)); err == nil {
				return searchPath, true
			}
		}

		parent := filepath.Dir(searchPath)
		if parent == searchPath {
			break // Reached root
		}
		searchPath = parent
	}
	return "", false
}
