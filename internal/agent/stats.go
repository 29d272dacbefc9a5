package agent

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
)

// Build is stamped at link time.
var Build = "dev"

// Diagnostics reports the agent process' own vitals from /proc.
func Diagnostics() (*guest.DiagnosticsResult, error) {
	result := &guest.DiagnosticsResult{
		Version:    Build,
		APIVersion: guest.APIVersion,
	}

	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		var uptime float64
		fmt.Sscanf(string(data), "%f", &uptime)
		result.UptimeSec = int64(uptime)
	}

	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return nil, fault.New(fault.GuestError, "read process status: %v", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "VmSize:"):
			fmt.Sscanf(line, "VmSize: %d kB", &result.VMSizeKB)
		case strings.HasPrefix(line, "Threads:"):
			fmt.Sscanf(line, "Threads: %d", &result.Threads)
		}
	}

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemFree:") {
				fmt.Sscanf(line, "MemFree: %d kB", &result.VMFreeKB)
				break
			}
		}
	}

	return result, nil
}

// HWInfo reports the guest's total memory and CPU count.
func HWInfo() (*guest.HWInfoResult, error) {
	result := &guest.HWInfoResult{CPUCount: runtime.NumCPU()}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return nil, fault.New(fault.GuestError, "read meminfo: %v", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			var kb int
			fmt.Sscanf(line, "MemTotal: %d kB", &kb)
			result.MemTotalMB = kb / 1024
			break
		}
	}
	return result, nil
}

// FilesystemStats reports usage of the data volume mount.
func FilesystemStats(mountPoint string) (*guest.FilesystemStatsResult, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(mountPoint, &stat); err != nil {
		return nil, fault.New(fault.GuestError, "statfs %s: %v", mountPoint, err)
	}

	const gb = 1 << 30
	total := float64(stat.Blocks*uint64(stat.Bsize)) / gb
	free := float64(stat.Bavail*uint64(stat.Bsize)) / gb
	used := total - free

	result := &guest.FilesystemStatsResult{
		MountPoint: mountPoint,
		TotalGB:    total,
		UsedGB:     used,
		FreeGB:     free,
	}
	if total > 0 {
		result.UsedPct = used / total * 100
	}
	return result, nil
}
