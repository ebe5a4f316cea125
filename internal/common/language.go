package common

import (
	"path/filepath"
	"strings"
)

// DefaultLanguage is reported when no language could be inferred.
const DefaultLanguage = "plaintext"

// extensionLanguages maps lowercase file extensions to language names
// understood by the coordinator's snippet renderer.
var extensionLanguages = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".pl":    "perl",
	".lua":   "lua",
	".sql":   "sql",
}

// LanguageFromPath guesses a source language from a file path's
// extension. Unknown extensions return DefaultLanguage.
func LanguageFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return DefaultLanguage
}
