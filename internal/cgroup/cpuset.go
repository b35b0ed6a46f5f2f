package cgroup

import (
	"fmt"
	"strconv"
	"strings"
)

// CountCPUSet parses a kernel cpuset list ("0,2,4", "2-4", "0-1,3") and
// returns the number of cores it names. Each comma-separated token is either
// a bare core index (one core) or an inclusive range "lo-hi" (hi-lo+1 cores).
//
// The same format appears in cgroup v1 cpuset.cpus, cgroup v2
// cpuset.cpus.effective, and the Docker HostConfig CpusetCpus field, so the
// parser is exported for reuse.
func CountCPUSet(list string) (int64, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return 0, fmt.Errorf("empty cpuset list")
	}

	var total int64
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)

		lo, hi, isRange := strings.Cut(token, "-")
		if !isRange {
			if _, err := strconv.ParseInt(token, 10, 64); err != nil {
				return 0, fmt.Errorf("bad cpuset entry %q: %w", token, err)
			}
			total++
			continue
		}

		start, err := strconv.ParseInt(lo, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad cpuset range %q: %w", token, err)
		}
		end, err := strconv.ParseInt(hi, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad cpuset range %q: %w", token, err)
		}
		if end < start {
			return 0, fmt.Errorf("bad cpuset range %q: end before start", token)
		}
		total += end - start + 1
	}
	return total, nil
}
