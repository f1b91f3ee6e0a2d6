package source

import (
	"path/filepath"
	"strings"
)

var langByExt = map[string]string{
	".py": "Python", ".js": "JavaScript", ".ts": "TypeScript",
	".java": "Java", ".cpp": "C++", ".c": "C", ".h": "C", ".cs": "C#",
	".go": "Go", ".rs": "Rust", ".rb": "Ruby", ".php": "PHP",
	".swift": "Swift", ".kt": "Kotlin", ".scala": "Scala",
	".html": "HTML", ".css": "CSS", ".jsx": "React JSX",
	".tsx": "React TSX", ".vue": "Vue", ".md": "Markdown",
	".json": "JSON", ".yaml": "YAML", ".yml": "YAML",
	".toml": "TOML", ".xml": "XML", ".sql": "SQL", ".sh": "Shell",
}

var skipDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {}, "node_modules": {}, "vendor": {},
	"target": {}, "build": {}, "dist": {}, ".next": {}, ".cache": {},
	"__pycache__": {}, ".venv": {}, "venv": {}, ".idea": {}, ".vscode": {},
}

// Language maps a path's extension to a display language, "Unknown" when
// unmapped.
func Language(path string) string {
	if lang, ok := langByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "Unknown"
}

// FileTypeOf returns the lowercased extension, or "no_extension".
func FileTypeOf(path string) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		return ext
	}
	return "no_extension"
}

func isBinary(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	// images
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".bmp", ".tiff", ".svg":
		return true
	// video / audio
	case ".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi", ".mp3", ".wav", ".ogg", ".flac", ".m4a":
		return true
	// archives / binaries / fonts
	case ".pdf", ".zip", ".jar", ".gz", ".tgz", ".bz2", ".7z", ".exe", ".dll", ".dylib", ".so", ".woff", ".woff2", ".lock":
		return true
	}
	return false
}

// Filter decides which repository entries are worth fetching and
// summarizing. The zero value is not usable; call DefaultFilter.
type Filter struct {
	// MaxFileSize excludes files larger than this many bytes.
	MaxFileSize int64
	// MaxFiles caps how many files one ingest run will take, in tree order.
	MaxFiles int
	// IncludeExts, when non-empty, restricts to these extensions
	// (lowercased, with dot).
	IncludeExts []string
}

func DefaultFilter() *Filter {
	return &Filter{
		MaxFileSize: 500_000,
		MaxFiles:    500,
	}
}

// Include reports whether a file at path with the given size passes the
// filter. Directory skipping is handled separately via SkipDir.
func (f *Filter) Include(path string, size int64) bool {
	if size > f.MaxFileSize {
		return false
	}
	if isBinary(path) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if _, skip := skipDirs[part]; skip {
			return false
		}
	}
	if len(f.IncludeExts) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		ok := false
		for _, want := range f.IncludeExts {
			if ext == strings.ToLower(want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// SkipDir reports whether a directory basename should be pruned from a walk.
func SkipDir(base string) bool {
	_, skip := skipDirs[base]
	return skip
}

// -------- post-fetch list filters --------

// ByDirectory keeps files under the given path prefix.
func ByDirectory(files []SourceFile, dir string) []SourceFile {
	dir = strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
	out := files[:0:0]
	for _, f := range files {
		if strings.HasPrefix(f.Path, dir) {
			out = append(out, f)
		}
	}
	return out
}

// ExcludeTests drops files matching common test naming patterns.
func ExcludeTests(files []SourceFile) []SourceFile {
	patterns := []string{"test_", "_test.", "/tests/", "/test/"}
	out := files[:0:0]
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		matched := false
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, f)
		}
	}
	return out
}

// ExcludeConfig drops configuration-format files.
func ExcludeConfig(files []SourceFile) []SourceFile {
	out := files[:0:0]
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f.Path)) {
		case ".json", ".yaml", ".yml", ".toml", ".ini", ".cfg":
		default:
			out = append(out, f)
		}
	}
	return out
}

// OnlySourceCode keeps files in mainstream programming languages.
func OnlySourceCode(files []SourceFile) []SourceFile {
	exts := map[string]struct{}{
		".py": {}, ".js": {}, ".ts": {}, ".java": {}, ".cpp": {}, ".c": {},
		".cs": {}, ".go": {}, ".rs": {}, ".rb": {}, ".php": {}, ".swift": {},
		".kt": {}, ".scala": {},
	}
	out := files[:0:0]
	for _, f := range files {
		if _, ok := exts[strings.ToLower(filepath.Ext(f.Path))]; ok {
			out = append(out, f)
		}
	}
	return out
}
