package cgroup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shinji-kodama/dblimits/internal/model"
)

// Candidate filesystem paths, relative to the filesystem root. For each
// signal the v1 path is probed first, then the v2 path — there are only two
// cgroup layout generations, so an ordered fallback pair per signal is the
// whole story.
const (
	memoryLimitV1Path = "sys/fs/cgroup/memory/memory.limit_in_bytes"
	memoryMaxV2Path   = "sys/fs/cgroup/memory.max"

	cpuQuotaV1Path  = "sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	cpuPeriodV1Path = "sys/fs/cgroup/cpu/cpu.cfs_period_us"
	cpuMaxV2Path    = "sys/fs/cgroup/cpu.max"

	cpusetV1Path = "sys/fs/cgroup/cpuset/cpuset.cpus"
	cpusetV2Path = "sys/fs/cgroup/cpuset.cpus.effective"
)

// Detector resolves the container's resource limits into an Environment.
//
// Every invocation of Detect reads the kernel files fresh — there is no
// caching, and no state survives between calls. The detector is expected to
// run once per container start.
type Detector struct {
	// FS is the filesystem the cgroup paths are resolved against.
	// Production code uses os.DirFS("/"); tests substitute an fstest.MapFS.
	FS fs.FS

	// Procs supplies the raw processor count, normally by running the
	// external nproc utility.
	Procs ProcessorCountSource

	// Warn receives human-readable diagnostics for signals that could not
	// be detected. Defaults to os.Stderr in NewDetector.
	Warn io.Writer
}

// NewDetector returns a Detector wired to the real host: the root
// filesystem, the nproc binary, and stderr for warnings.
func NewDetector() *Detector {
	return &Detector{
		FS:    os.DirFS("/"),
		Procs: NprocSource{},
		Warn:  os.Stderr,
	}
}

// Detect resolves all limit variables and returns them as an Environment.
//
// Variables that could not be determined are absent from the result; the
// caller decides its own defaults. The only error return is an unexpected
// failure executing the processor-count utility — every other problem is
// reported as a warning and degrades to omission.
func (d *Detector) Detect() (model.Environment, error) {
	env := model.NewEnvironment()

	if limit, ok := d.memoryLimit(); ok {
		env.SetInt(model.EnvMemoryLimit, limit)
		// A limit at or above the threshold is the kernel's way of saying
		// "unbounded" (v1 reports a page-rounded near-2^63 default). The
		// flag is only ever emitted as "true"; it is absent otherwise.
		if limit >= model.NoMemoryLimitThreshold {
			env.Set(model.EnvNoMemoryLimit, "true")
		}
	}

	// Always emitted, so the supervisor has a known ceiling to compare
	// MEMORY_LIMIT_IN_BYTES against even when detection failed.
	env.SetInt(model.EnvMaxMemoryLimit, model.MaxMemoryLimitBytes)

	cores, ok, err := d.coreCount()
	if err != nil {
		return model.Environment{}, err
	}
	if ok {
		env.SetInt(model.EnvNumberOfCores, cores)
	}

	return env, nil
}

// memoryLimit resolves the container's memory ceiling in bytes.
//
// The v1 file is preferred; if it is absent or unparseable the v2 file is
// tried, where the literal token "max" maps to the MaxMemoryLimitBytes
// sentinel. When neither path yields a value, a warning is emitted and the
// limit is undetermined.
func (d *Detector) memoryLimit() (int64, bool) {
	if raw, ok := d.readTrimmed(memoryLimitV1Path); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			return v, true
		}
	}

	if raw, ok := d.readTrimmed(memoryMaxV2Path); ok {
		if raw == "max" {
			return model.MaxMemoryLimitBytes, true
		}
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			return v, true
		}
	}

	d.warnf("memory limit")
	return 0, false
}

// coreCount resolves the number of usable CPU cores as the minimum across
// three independently computed candidates: the CFS quota, the cpuset, and
// the raw processor count. A candidate that cannot be computed is excluded
// from the minimum, never treated as zero. If no candidate succeeds the
// count is undetermined.
func (d *Detector) coreCount() (count int64, found bool, err error) {
	consider := func(n int64, ok bool) {
		if ok && (!found || n < count) {
			count, found = n, true
		}
	}

	consider(d.quotaCores())
	consider(d.cpusetCores())

	n, ok, err := d.processorCores()
	if err != nil {
		return 0, false, err
	}
	consider(n, ok)

	return count, found, nil
}

// quotaCores computes the CPU-quota candidate: floor(quota / period) from
// the CFS bandwidth controller.
//
// A v1 quota of "-1" or a v2 quota of "max" means the controller imposes no
// limit — the candidate is undetermined and no warning is emitted, since
// that is an affirmative "unlimited" answer rather than a detection failure.
func (d *Detector) quotaCores() (int64, bool) {
	var quotaRaw, periodRaw string

	if raw, ok := d.readTrimmed(cpuQuotaV1Path); ok {
		if raw == "-1" {
			return 0, false
		}
		quotaRaw = raw
		periodRaw, _ = d.readTrimmed(cpuPeriodV1Path)
	} else if raw, ok := d.readTrimmed(cpuMaxV2Path); ok {
		// v2 collapses both numbers into one file: "<quota> <period>".
		fields := strings.Fields(raw)
		if len(fields) == 2 {
			if fields[0] == "max" {
				return 0, false
			}
			quotaRaw, periodRaw = fields[0], fields[1]
		}
	}

	quota, qerr := strconv.ParseInt(quotaRaw, 10, 64)
	period, perr := strconv.ParseInt(periodRaw, 10, 64)
	if qerr != nil || perr != nil || period <= 0 {
		d.warnf("cpu quota")
		return 0, false
	}

	cores := quota / period
	if cores < 1 {
		// A fractional quota (less than one full core) would poison the
		// minimum with a zero; treat it as no candidate.
		return 0, false
	}
	return cores, true
}

// cpusetCores computes the cpuset candidate: the number of cores the
// process tree is pinned to.
//
// Non-root containers commonly cannot read either cpuset path, so the
// warning here fires on every invocation in that setup. That is intentional:
// the supervisor log records which signal was unavailable each start.
func (d *Detector) cpusetCores() (int64, bool) {
	raw, ok := d.readTrimmed(cpusetV1Path)
	if !ok {
		raw, ok = d.readTrimmed(cpusetV2Path)
	}
	if !ok {
		d.warnf("cpuset")
		return 0, false
	}

	n, err := CountCPUSet(raw)
	if err != nil {
		d.warnf("cpuset")
		return 0, false
	}
	return n, true
}

// processorCores computes the raw processor-count candidate via the
// external utility.
//
// A missing utility binary means "no candidate" and is silent. Garbage
// output is warned and skipped. Any other execution failure is the one
// fatal path in the detector: an unexpected subprocess error must surface
// rather than be folded into "undetermined".
func (d *Detector) processorCores() (int64, bool, error) {
	n, err := d.Procs.ProcessorCount()
	switch {
	case err == nil:
		return n, true, nil
	case errors.Is(err, exec.ErrNotFound):
		return 0, false, nil
	case errors.Is(err, ErrBadProcessorCount):
		d.warnf("number of processors")
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// readTrimmed reads a file from the detector's filesystem and returns its
// whitespace-trimmed content. Any read error — not-exist and permission
// denied alike — reports the file as absent; distinguishing the two buys
// nothing, since both mean the signal is unavailable to this process.
func (d *Detector) readTrimmed(path string) (string, bool) {
	b, err := fs.ReadFile(d.FS, path)
	if err != nil {
		return "", false
	}
	return string(bytes.TrimSpace(b)), true
}

// warnf emits a detection-failure diagnostic. The message shape is part of
// the supervisor's log vocabulary.
func (d *Detector) warnf(signal string) {
	fmt.Fprintf(d.Warn, "Warning: Can't detect %s\n", signal)
}
