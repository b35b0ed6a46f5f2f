// Package cgroup implements read-only detection of the resource limits
// imposed on the current container by the kernel control-group subsystem.
//
// The detector inspects a fixed set of well-known files under
// /sys/fs/cgroup, supporting both the v1 (per-controller directory) and
// v2 (unified hierarchy) filesystem layouts, and derives:
//   - the memory ceiling in bytes (MEMORY_LIMIT_IN_BYTES)
//   - the number of usable CPU cores (NUMBER_OF_CORES), reconciled as the
//     minimum across the CFS quota, the cpuset, and the raw processor count
//   - a normalized "no limit" flag (NO_MEMORY_LIMIT)
//
// Absence is normal here: non-root containers often cannot read cgroup v2
// files at all, and unset controllers report sentinel values ("-1", "max").
// Every per-signal failure is local — a warning on the diagnostic stream at
// most — and the corresponding variable is simply omitted from the result.
// The single fatal path is an unexpected failure spawning the external
// processor-count utility.
//
// All filesystem access goes through an injected fs.FS rooted at "/", and
// the processor-count utility sits behind the ProcessorCountSource
// interface, so tests run against testing/fstest.MapFS and a fake source
// without touching the host.
package cgroup
