package fs

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"

	"gb-go/internal/gb"
)

// Usage returns disk usage for the filesystem holding path.
func (m *OSFilesystem) Usage(path string) (*gb.DiskUsage, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	return &gb.DiskUsage{
		Total: u.Total,
		Used:  u.Used,
		Free:  u.Free,
	}, nil
}
