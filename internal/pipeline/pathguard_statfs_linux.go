//go:build linux

package pipeline

import "golang.org/x/sys/unix"

// freeSpaceGB reports free space at dir in GiB via unix.Statfs, the cheap
// syscall path available on every Linux deployment target (§4.3 step 4).
func freeSpaceGB(dir string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return float64(freeBytes) / (1024 * 1024 * 1024), nil
}
