//go:build windows

package scheduler

import "golang.org/x/sys/windows"

func init() {
	diskUsage = windowsDiskUsage
}

// windowsDiskUsage reports the fraction of the volume holding path that
// is in use, via GetDiskFreeSpaceEx, mirroring the teacher's
// stat_windows.go use of the Windows-specific syscall surface for
// filesystem data stdlib doesn't expose portably.
func windowsDiskUsage(path string) (float64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var freeAvail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &total, &free); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, errDiskUsageUnsupported
	}
	return float64(total-free) / float64(total), nil
}
