//go:build unix

package scheduler

import "golang.org/x/sys/unix"

func init() {
	diskUsage = statfsDiskUsage
}

// statfsDiskUsage reports the fraction of the filesystem holding path
// that is in use, via unix.Statfs, mirroring the teacher's per-OS
// stat_linux.go/stat_darwin.go split for filesystem calls it can't get
// portably from stdlib alone.
func statfsDiskUsage(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	total := st.Blocks * uint64(st.Bsize)
	if total == 0 {
		return 0, errDiskUsageUnsupported
	}
	free := st.Bavail * uint64(st.Bsize)
	used := total - free
	return float64(used) / float64(total), nil
}
