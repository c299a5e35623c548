package watch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFile lists extra gitignore-style patterns inside a corpus directory.
const IgnoreFile = ".supportignore"

// defaultIgnores skip editor droppings and hidden files.
var defaultIgnores = []string{
	".*",
	"*~",
	"*.swp",
	"*.tmp",
}

// IgnoreFilter decides which paths under root are not corpus files.
type IgnoreFilter struct {
	root     string
	patterns []gitignore.Pattern
}

// NewIgnoreFilter loads the default patterns plus root/.supportignore.
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	f := &IgnoreFilter{root: root}
	for _, p := range defaultIgnores {
		f.patterns = append(f.patterns, gitignore.ParsePattern(p, nil))
	}

	file, err := os.Open(filepath.Join(root, IgnoreFile))
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.patterns = append(f.patterns, gitignore.ParsePattern(line, nil))
	}
	return f, scanner.Err()
}

// ShouldIgnore reports whether path matches an ignore pattern. Later
// patterns win, so "!keep.json" re-includes a file.
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	ignored := false
	for _, p := range f.patterns {
		switch p.Match(parts, false) {
		case gitignore.Exclude:
			ignored = true
		case gitignore.Include:
			ignored = false
		}
	}
	return ignored
}
