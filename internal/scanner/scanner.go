package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fjglira/qagen/internal/domain"
)

// Scanner discovers design inputs (screenshots and text specs) on disk.
type Scanner interface {
	Scan(rootDir string, patterns []string, excludes []string) ([]string, error)
}

// FileScanner implements Scanner using filepath.WalkDir.
type FileScanner struct {
	Recursive bool
}

// NewScanner creates a new FileScanner.
func NewScanner(recursive bool) *FileScanner {
	return &FileScanner{Recursive: recursive}
}

// Scan walks rootDir and returns sorted file paths matching any of the given
// glob patterns while excluding paths that match any exclude pattern.
// Hidden files and directories are skipped. A rootDir naming a single file
// is returned as is when it matches.
func (s *FileScanner) Scan(rootDir string, patterns []string, excludes []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(rootDir, path)
		if relErr != nil {
			relPath = path
		}
		if relPath == "." && !d.IsDir() {
			relPath = d.Name()
		}

		if relPath != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !s.Recursive && relPath != "." {
				return filepath.SkipDir
			}
			for _, exc := range excludes {
				if matchGlob(relPath, exc) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		for _, exc := range excludes {
			if matchGlob(relPath, exc) {
				return nil
			}
		}

		for _, pattern := range patterns {
			if matchGlob(relPath, pattern) {
				files = append(files, path)
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, domain.NewErrorWithSuggestion("scan", rootDir, "failed to scan input directory",
			"check input.directories in the config file", err)
	}

	sort.Strings(files)
	return files, nil
}

// ScanAll scans every directory and returns the union in directory order,
// each file listed once.
func (s *FileScanner) ScanAll(dirs []string, patterns []string, excludes []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, dir := range dirs {
		files, err := s.Scan(dir, patterns, excludes)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				abs = f
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// matchGlob matches a path against a glob pattern, supporting ** for recursive matching.
func matchGlob(path, pattern string) bool {
	path = filepath.ToSlash(path)
	pattern = filepath.ToSlash(pattern)

	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")

		if prefix != "" {
			if path != prefix && !strings.HasPrefix(path, prefix+"/") {
				return false
			}
			path = strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
		}

		if suffix == "" {
			return true
		}

		// Try the suffix against every tail of the path.
		pathParts := strings.Split(path, "/")
		for i := range pathParts {
			if matched, _ := filepath.Match(suffix, strings.Join(pathParts[i:], "/")); matched {
				return true
			}
		}
		return false
	}

	if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
		return true
	}
	matched, _ := filepath.Match(pattern, path)
	return matched
}
