package internal

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFilename lists gitignore-style patterns, relative to the data
// directory, for files ingestion must not read.
const IgnoreFilename = ".ragignore"

type IgnoreMatcher struct {
	matcher gitignore.Matcher
	root    string
}

func NewIgnoreMatcher(root string) (*IgnoreMatcher, error) {
	patterns, err := parseIgnoreFile(filepath.Join(root, IgnoreFilename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &IgnoreMatcher{
		matcher: gitignore.NewMatcher(patterns),
		root:    root,
	}, nil
}

// Ignored reports whether path, which must live under the matcher root, is
// excluded. The ignore file itself is always excluded.
func (m *IgnoreMatcher) Ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." {
		return false
	}
	if !isDir && filepath.Base(rel) == IgnoreFilename {
		return true
	}

	return m.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}

func parseIgnoreFile(path string) ([]gitignore.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
