package gb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"
)

const (
	// GenerationLayout is the time layout of generation folder names.
	GenerationLayout = "20060102"

	// LogFolderName is the working-folder entry that holds run logs.
	LogFolderName = "logs"
)

// GenerationName returns the generation folder name for a run started at t.
func GenerationName(t time.Time) string {
	return t.Format(GenerationLayout)
}

// IsGenerationName reports whether name consists solely of decimal digits.
func IsGenerationName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}

// ListGenerations returns the generation folders under workingFolder, newest
// first. A missing working folder means no backup has run yet and yields an
// empty result.
func ListGenerations(workingFolder string) ([]string, error) {
	entries, err := os.ReadDir(workingFolder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading working folder %s: %w", workingFolder, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || !IsGenerationName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}

	sort.Slice(names, func(i, j int) bool {
		return generationLess(names[j], names[i])
	})
	return names, nil
}

// generationLess orders digit strings numerically without parsing them.
func generationLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
