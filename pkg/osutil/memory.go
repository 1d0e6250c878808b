package osutil

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

const (
	// cgroup v1 reports this limit when memory isn't restricted
	unrestrictedMemoryLimit = 9223372036854771712
)

var cgroupMemoryLimitLocations = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// GetTotalMemory returns the total available memory size. The call is
// container-aware.
func GetTotalMemory() uint64 {
	totalMemory := memory.TotalMemory()

	for _, location := range cgroupMemoryLimitLocations {
		limit, ok := readMemoryLimit(location)
		if ok && limit < totalMemory {
			return limit
		}
	}
	return totalMemory
}

// GetMemoryUsage returns the memory obtained from the OS by the Go runtime,
// and that amount as a percentage of GetTotalMemory.
func GetMemoryUsage() (uint64, float64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	total := GetTotalMemory()
	if total == 0 {
		return stats.Sys, 0
	}
	return stats.Sys, 100 * float64(stats.Sys) / float64(total)
}

func readMemoryLimit(location string) (uint64, bool) {
	contents, err := os.ReadFile(location)
	if err != nil {
		return 0, false
	}
	return parseMemoryLimit(string(contents))
}

// parseMemoryLimit parses a cgroup memory limit. Unrestricted limits aren't
// valid.
func parseMemoryLimit(value string) (uint64, bool) {
	value = strings.TrimSpace(value)
	if value == "max" {
		return 0, false
	}

	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 || limit == unrestrictedMemoryLimit {
		return 0, false
	}
	return limit, true
}
