package utils

import (
	"path"
	"strings"
)

var extLanguages = map[string]string{
	"js":   "javascript",
	"jsx":  "javascript",
	"mjs":  "javascript",
	"cjs":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"py":   "python",
	"html": "html",
	"htm":  "html",
	"css":  "css",
	"scss": "scss",
	"json": "json",
	"md":   "markdown",
	"sql":  "sql",
	"java": "java",
	"cpp":  "cpp",
	"cc":   "cpp",
	"c":    "c",
	"h":    "c",
	"php":  "php",
	"rb":   "ruby",
	"go":   "go",
	"rs":   "rust",
	"yml":  "yaml",
	"yaml": "yaml",
	"sh":   "shell",
}

// LanguageFromPath maps a file name or path to an editor language id. Unknown extensions are "text".
func LanguageFromPath(p string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return "text"
}

// CleanRelPath normalises a project-relative path: forward slashes, no leading slash,
// no "." segments. It returns "" when the path escapes the project root.
func CleanRelPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return ""
	}
	// path.Clean on a rooted path cannot climb above "/", so compare against the input.
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return ""
		}
	}
	return cleaned
}
