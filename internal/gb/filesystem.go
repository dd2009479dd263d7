package gb

// GiB is the number of bytes in a gibibyte.
const GiB = 1 << 30

// DiskUsage describes the space of the filesystem holding a path.
type DiskUsage struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// BytesToGiB converts a byte count to GiB.
func BytesToGiB(n uint64) float64 {
	return float64(n) / GiB
}

// Matcher decides whether a directory entry name is excluded from traversal.
type Matcher interface {
	Match(name string) bool
}

// Filesystem provides the content operations of the copy engine.
// Traversal itself reads the source tree directly.
type Filesystem interface {
	// SameContent reports whether two files hold identical bytes.
	// A directory or other non-regular entry is never the same as a file.
	SameContent(a, b string) (bool, error)

	// CopyFile duplicates src at dst, creating parent directories and keeping
	// permission bits and timestamps. It returns the number of bytes written.
	CopyFile(src, dst string) (int64, error)

	// SameLink reports whether two symbolic links point to the same target.
	SameLink(a, b string) (bool, error)

	// CopyLink recreates the symbolic link src at dst.
	CopyLink(src, dst string) error

	// Usage returns disk usage for the filesystem holding path.
	Usage(path string) (*DiskUsage, error)

	// Matcher builds a Matcher from the union of the given pattern lists.
	Matcher(patterns ...[]string) Matcher
}
