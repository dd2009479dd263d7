package fs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gb-go/internal/gb"
)

// compareBufferSize is the chunk size used when comparing file contents.
const compareBufferSize = 64 * 1024

// OSFilesystem is the real filesystem implementation of gb.Filesystem.
type OSFilesystem struct{}

// NewOSFilesystem creates a filesystem that operates on the real filesystem.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

// SameContent compares two files byte for byte. Files of different size are
// reported different without reading them. b is not followed if it is a link.
func (m *OSFilesystem) SameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	infoB, err := os.Lstat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if !infoA.Mode().IsRegular() || !infoB.Mode().IsRegular() {
		return false, nil
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", a, err)
	}
	defer fa.Close()

	fb, err := os.Open(b)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", b, err)
	}
	defer fb.Close()

	return sameReaders(fa, fb)
}

func sameReaders(a, b io.Reader) (bool, error) {
	bufA := make([]byte, compareBufferSize)
	bufB := make([]byte, compareBufferSize)
	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if errA != nil && errA != io.EOF && errA != io.ErrUnexpectedEOF {
			return false, fmt.Errorf("reading: %w", errA)
		}
		if errB != nil && errB != io.EOF && errB != io.ErrUnexpectedEOF {
			return false, fmt.Errorf("reading: %w", errB)
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA != nil || errB != nil {
			// Both short reads of equal length: end of both files.
			return errA != nil && errB != nil, nil
		}
	}
}

// CopyFile copies src to dst through a temporary file in the destination
// directory, then applies the source permission bits and timestamps.
func (m *OSFilesystem) CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gb-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, in)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("copying content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("moving into place: %w", err)
	}
	if err := os.Chtimes(dst, accessTime(info), info.ModTime()); err != nil {
		return n, fmt.Errorf("setting timestamps: %w", err)
	}
	return n, nil
}

// SameLink reports whether a and b are symbolic links with the same target.
func (m *OSFilesystem) SameLink(a, b string) (bool, error) {
	targetA, err := os.Readlink(a)
	if err != nil {
		return false, fmt.Errorf("reading link %s: %w", a, err)
	}
	infoB, err := os.Lstat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if infoB.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	targetB, err := os.Readlink(b)
	if err != nil {
		return false, fmt.Errorf("reading link %s: %w", b, err)
	}
	return targetA == targetB, nil
}

// CopyLink recreates the symbolic link src at dst with the same target.
func (m *OSFilesystem) CopyLink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("reading link: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("creating link: %w", err)
	}
	return nil
}

// Matcher builds an IgnoreMatcher from the union of the pattern lists.
func (m *OSFilesystem) Matcher(patterns ...[]string) gb.Matcher {
	return NewIgnoreMatcher(patterns...)
}

// Compile-time check that OSFilesystem implements gb.Filesystem interface
var _ gb.Filesystem = (*OSFilesystem)(nil)
