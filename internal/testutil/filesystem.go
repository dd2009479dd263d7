package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	gbfs "gb-go/internal/fs"
	"gb-go/internal/gb"
)

// StubFilesystem is the real filesystem with a fixed disk usage report.
type StubFilesystem struct {
	*gbfs.OSFilesystem
	usage gb.DiskUsage
	err   error
}

// NewStubFilesystem returns a StubFilesystem reporting freeGiB of free space
// out of a 100 GiB disk.
func NewStubFilesystem(freeGiB float64) *StubFilesystem {
	total := uint64(100 * gb.GiB)
	free := uint64(freeGiB * gb.GiB)
	return &StubFilesystem{
		OSFilesystem: gbfs.NewOSFilesystem(),
		usage:        gb.DiskUsage{Total: total, Used: total - free, Free: free},
	}
}

// SetUsageError makes Usage fail with err.
func (s *StubFilesystem) SetUsageError(err error) {
	s.err = err
}

func (s *StubFilesystem) Usage(string) (*gb.DiskUsage, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := s.usage
	return &u, nil
}

var _ gb.Filesystem = (*StubFilesystem)(nil)

// WriteFile creates path with content, making parent directories as needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// ReadTree returns the regular files below root keyed by slash-separated
// relative path.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("reading tree %s: %v", root, err)
	}
	return tree
}

// Keys returns the sorted keys of a tree.
func Keys(tree map[string]string) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
