package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	ragerrors "github.com/bulldra/bookrag/internal/errors"
)

// bookExtensions are the file types treated as books.
var bookExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// Document is one discovered book file with its extracted text.
type Document struct {
	Meta *BookMeta
	Text string
}

// DiscoverBooks walks dir and returns the paths of all book files,
// sorted, excluding any path matching the exclude patterns.
func DiscoverBooks(dir string, exclude []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if rel != "." && excludedPath(rel+"/", exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if !bookExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if excludedPath(rel, exclude) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, ragerrors.IOError("scanning books directory", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadDocument loads a book file: YAML front matter becomes catalog
// metadata, the remainder is the text. Extraction is deterministic for
// an unchanged file. Missing front matter falls back to the first
// heading for the title and the file name for the ID.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.New(ragerrors.ErrCodeFileNotFound, "book file not found", err)
		}
		return nil, ragerrors.IOError("reading book file", err)
	}

	meta, body := splitFrontMatter(string(data))
	meta.ID = BookIDFromPath(path)
	meta.Path = path
	if meta.Title == "" {
		meta.Title = firstHeading(body)
	}

	return &Document{Meta: meta, Text: body}, nil
}

// frontMatter is the YAML block an author may place at the top of a
// book file between two "---" lines.
type frontMatter struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Year   int    `yaml:"year"`
}

// splitFrontMatter separates a leading YAML front matter block from the
// body. Malformed front matter is treated as body text.
func splitFrontMatter(content string) (*BookMeta, string) {
	meta := &BookMeta{}
	if !strings.HasPrefix(content, "---\n") {
		return meta, content
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, content
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return meta, content
	}
	meta.Title = fm.Title
	meta.Author = fm.Author
	meta.Year = fm.Year
	return meta, body
}

// firstHeading returns the text of the first markdown heading, if any.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		if trimmed != "" {
			return ""
		}
	}
	return ""
}

// excludedPath reports whether a slash-relative path matches any
// exclude pattern. Supported forms: "**/name/**" (any directory
// segment), "**/name" and bare globs (base name match).
func excludedPath(relPath string, patterns []string) bool {
	relPath = filepath.ToSlash(relPath)
	isDir := strings.HasSuffix(relPath, "/")
	relPath = strings.TrimSuffix(relPath, "/")
	segments := strings.Split(relPath, "/")
	base := segments[len(segments)-1]

	for _, p := range patterns {
		p = strings.TrimPrefix(p, "**/")
		if dirPat, ok := strings.CutSuffix(p, "/**"); ok {
			for _, seg := range segments {
				if matched, _ := filepath.Match(dirPat, seg); matched {
					return true
				}
			}
			continue
		}
		if isDir {
			continue
		}
		if matched, _ := filepath.Match(p, base); matched {
			return true
		}
	}
	return false
}
