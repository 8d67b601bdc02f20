//go:build !linux

package pipeline

import "github.com/shirou/gopsutil/v3/disk"

// freeSpaceGB reports free space at dir in GiB via gopsutil, used on
// non-Linux build targets where unix.Statfs_t's field layout isn't portable
// (§12 domain stack: gopsutil disk-usage fallback).
func freeSpaceGB(dir string) (float64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return float64(usage.Free) / (1024 * 1024 * 1024), nil
}
