package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var imageExts = []string{"jpg", "jpeg", "png", "gif", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lower-case file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	return slices.Contains(imageExts, GetFileExtension(filename))
}

// OutputFilename derives an output path in outputDir from the input name, e.g.
// photo.jpg with suffix "_blur8" becomes outputDir/photo_blur8.jpg. An empty
// format keeps the input extension.
func OutputFilename(inputFile, outputDir, suffix, format string) string {
	base := filepath.Base(inputFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "jpg"
		}
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", name, suffix, format))
}

// ListImageFiles recursively lists image files under dir in lexical order
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
