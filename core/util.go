package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd returns the project root: the closest directory holding go.mod, walking up from the working
// directory. go test runs in the package directory, so config files are looked up from there.
// The working directory itself is returned when no go.mod is found.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	return findRoot(wd)
}

func findRoot(dir string) string {
	currDir := dir
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		parent := filepath.Dir(currDir)
		if parent == currDir {
			return dir
		}
		currDir = parent
	}
}
