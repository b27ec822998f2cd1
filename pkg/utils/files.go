package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ReadSource loads a program file as text. Files that are not valid UTF-8
// are rejected.
func ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read source file %q: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("source file %q is not valid UTF-8", path)
	}
	return string(data), nil
}

// Kind classifies program files by extension.
type Kind int

const (
	KindSource   Kind = iota // brainfuck text
	KindListing              // instruction listing (.bfa)
	KindCompiled             // compiled program object (.bfo)
)

func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bfa":
		return KindListing
	case ".bfo":
		return KindCompiled
	}
	return KindSource
}

// DefaultOutputPath swaps the extension of inPath for .bfo.
func DefaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".bfo"
	}
	return strings.TrimSuffix(inPath, ext) + ".bfo"
}
