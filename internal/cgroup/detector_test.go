package cgroup

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/dblimits/internal/model"
)

// fakeProcs is a ProcessorCountSource that returns canned values, so
// detector tests never spawn real processes.
type fakeProcs struct {
	n   int64
	err error
}

func (f fakeProcs) ProcessorCount() (int64, error) {
	return f.n, f.err
}

// notFoundProcs simulates a host without the nproc utility installed.
var notFoundProcs = fakeProcs{err: fmt.Errorf("running nproc: %w", exec.ErrNotFound)}

// newTestDetector builds a Detector over an in-memory filesystem and a fake
// processor-count source, capturing warnings in the returned buffer.
func newTestDetector(fsys fstest.MapFS, procs ProcessorCountSource) (*Detector, *bytes.Buffer) {
	warnings := &bytes.Buffer{}
	return &Detector{FS: fsys, Procs: procs, Warn: warnings}, warnings
}

// file is a shorthand for an fstest.MapFile with the given content.
func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

// TestDetect_MemoryLimitV1 verifies that a cgroup v1 memory limit file
// containing an integer resolves to exactly that value.
func TestDetect_MemoryLimitV1(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/memory/memory.limit_in_bytes": file("2147483648\n"),
	}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "2147483648", v)

	// 2 GiB is far below the unlimited threshold, so the flag is absent.
	_, ok = env.Lookup(model.EnvNoMemoryLimit)
	assert.False(t, ok)
}

// TestDetect_MemoryLimitV2Max verifies that a cgroup v2 memory.max file
// containing the literal token "max" resolves to the 2^63-1 sentinel and
// raises the no-limit flag.
func TestDetect_MemoryLimitV2Max(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/memory.max": file("max\n"),
	}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "9223372036854775807", v)

	flag, ok := env.Lookup(model.EnvNoMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "true", flag)
}

// TestDetect_MemoryLimitV2Numeric verifies that a numeric v2 memory.max
// value is used when the v1 file is absent.
func TestDetect_MemoryLimitV2Numeric(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/memory.max": file("1073741824\n"),
	}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "1073741824", v)
}

// TestDetect_MemoryLimitV1Precedence verifies the v1 file wins when both
// layouts are present.
func TestDetect_MemoryLimitV1Precedence(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/memory/memory.limit_in_bytes": file("536870912"),
		"sys/fs/cgroup/memory.max":                   file("max"),
	}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "536870912", v)
}

// TestDetect_MemoryLimitV1GarbageFallsBackToV2 verifies that an unparseable
// v1 value falls through to the v2 file rather than giving up.
func TestDetect_MemoryLimitV1GarbageFallsBackToV2(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/memory/memory.limit_in_bytes": file("not-a-number"),
		"sys/fs/cgroup/memory.max":                   file("1073741824"),
	}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "1073741824", v)
}

// TestDetect_MemoryLimitUndetermined verifies that when no memory file
// yields a value, the variable is omitted entirely and a warning is
// written — never an empty or null entry.
func TestDetect_MemoryLimitUndetermined(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"both files absent", fstest.MapFS{}},
		{"v1 garbage, v2 absent", fstest.MapFS{
			"sys/fs/cgroup/memory/memory.limit_in_bytes": file("garbage"),
		}},
		{"v2 garbage", fstest.MapFS{
			"sys/fs/cgroup/memory.max": file("garbage"),
		}},
		{"v1 negative", fstest.MapFS{
			"sys/fs/cgroup/memory/memory.limit_in_bytes": file("-42"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, warnings := newTestDetector(tt.fsys, notFoundProcs)

			env, err := d.Detect()
			require.NoError(t, err)

			_, ok := env.Lookup(model.EnvMemoryLimit)
			assert.False(t, ok, "undetermined memory limit must be omitted")
			_, ok = env.Lookup(model.EnvNoMemoryLimit)
			assert.False(t, ok, "no-limit flag depends on a present memory limit")
			assert.Contains(t, warnings.String(), "Warning: Can't detect memory limit")
		})
	}
}

// TestDetect_NoMemoryLimitThreshold verifies the flag is present exactly
// when the resolved limit is at or above the threshold constant.
func TestDetect_NoMemoryLimitThreshold(t *testing.T) {
	tests := []struct {
		name     string
		limit    string
		wantFlag bool
	}{
		{"below threshold", "92233720368546", false},
		{"at threshold", "92233720368547", true},
		{"above threshold", "92233720368548", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDetector(fstest.MapFS{
				"sys/fs/cgroup/memory/memory.limit_in_bytes": file(tt.limit),
			}, notFoundProcs)

			env, err := d.Detect()
			require.NoError(t, err)

			flag, ok := env.Lookup(model.EnvNoMemoryLimit)
			if tt.wantFlag {
				require.True(t, ok)
				assert.Equal(t, "true", flag)
			} else {
				assert.False(t, ok)
			}
		})
	}
}

// TestDetect_MaxMemoryLimitAlwaysPresent verifies the constant ceiling is
// emitted even when nothing else could be detected.
func TestDetect_MaxMemoryLimitAlwaysPresent(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvMaxMemoryLimit)
	require.True(t, ok)
	assert.Equal(t, "9223372036854775807", v)
}

// TestDetect_QuotaCores exercises the CFS quota candidate across the v1
// and v2 layouts, the "-1"/"max" no-limit sentinels, and malformed input.
func TestDetect_QuotaCores(t *testing.T) {
	tests := []struct {
		name      string
		fsys      fstest.MapFS
		wantCores string // "" means NUMBER_OF_CORES absent
		wantWarn  bool
	}{
		{
			name: "v1 quota and period",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu/cpu.cfs_quota_us":  file("200000\n"),
				"sys/fs/cgroup/cpu/cpu.cfs_period_us": file("100000\n"),
			},
			wantCores: "2",
		},
		{
			name: "v1 floor division",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu/cpu.cfs_quota_us":  file("250000"),
				"sys/fs/cgroup/cpu/cpu.cfs_period_us": file("100000"),
			},
			wantCores: "2",
		},
		{
			name: "v1 quota -1 means no limit regardless of period",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu/cpu.cfs_quota_us":  file("-1"),
				"sys/fs/cgroup/cpu/cpu.cfs_period_us": file("100000"),
			},
			wantCores: "",
		},
		{
			name: "v2 quota and period",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu.max": file("400000 100000\n"),
			},
			wantCores: "4",
		},
		{
			name: "v2 max token means no limit",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu.max": file("max 100000"),
			},
			wantCores: "",
		},
		{
			name: "v1 quota present but period missing",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu/cpu.cfs_quota_us": file("200000"),
			},
			wantCores: "",
			wantWarn:  true,
		},
		{
			name: "v2 garbage",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpu.max": file("lots of cores"),
			},
			wantCores: "",
			wantWarn:  true,
		},
		{
			name:      "both layouts absent",
			fsys:      fstest.MapFS{},
			wantCores: "",
			wantWarn:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// nproc is absent so the quota candidate alone decides the count.
			d, warnings := newTestDetector(tt.fsys, notFoundProcs)

			env, err := d.Detect()
			require.NoError(t, err)

			v, ok := env.Lookup(model.EnvNumberOfCores)
			if tt.wantCores == "" {
				assert.False(t, ok, "expected NUMBER_OF_CORES to be absent, got %q", v)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantCores, v)
			}

			if tt.wantWarn {
				assert.Contains(t, warnings.String(), "Warning: Can't detect cpu quota")
			} else {
				assert.NotContains(t, warnings.String(), "Warning: Can't detect cpu quota")
			}
		})
	}
}

// TestDetect_FractionalQuotaExcluded verifies that a quota below one full
// core does not contribute a zero candidate to the minimum.
func TestDetect_FractionalQuotaExcluded(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/cpu/cpu.cfs_quota_us":  file("50000"),
		"sys/fs/cgroup/cpu/cpu.cfs_period_us": file("100000"),
	}, fakeProcs{n: 8})

	env, err := d.Detect()
	require.NoError(t, err)

	// The half-core quota is excluded; the nproc candidate remains.
	v, ok := env.Lookup(model.EnvNumberOfCores)
	require.True(t, ok)
	assert.Equal(t, "8", v)
}

// TestDetect_CpusetCores exercises the cpuset candidate: v1/v2 fallback and
// the warning when neither layout is readable.
func TestDetect_CpusetCores(t *testing.T) {
	tests := []struct {
		name      string
		fsys      fstest.MapFS
		wantCores string
		wantWarn  bool
	}{
		{
			name: "v1 range",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpuset/cpuset.cpus": file("2-4\n"),
			},
			wantCores: "3",
		},
		{
			name: "v2 effective list",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpuset.cpus.effective": file("0,2,4"),
			},
			wantCores: "3",
		},
		{
			name: "v1 preferred over v2",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpuset/cpuset.cpus":    file("0-1"),
				"sys/fs/cgroup/cpuset.cpus.effective": file("0-7"),
			},
			wantCores: "2",
		},
		{
			name:      "neither layout readable",
			fsys:      fstest.MapFS{},
			wantCores: "",
			wantWarn:  true,
		},
		{
			name: "malformed list",
			fsys: fstest.MapFS{
				"sys/fs/cgroup/cpuset/cpuset.cpus": file("4-2"),
			},
			wantCores: "",
			wantWarn:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, warnings := newTestDetector(tt.fsys, notFoundProcs)

			env, err := d.Detect()
			require.NoError(t, err)

			v, ok := env.Lookup(model.EnvNumberOfCores)
			if tt.wantCores == "" {
				assert.False(t, ok, "expected NUMBER_OF_CORES to be absent, got %q", v)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantCores, v)
			}

			if tt.wantWarn {
				assert.Contains(t, warnings.String(), "Warning: Can't detect cpuset")
			} else {
				assert.NotContains(t, warnings.String(), "Warning: Can't detect cpuset")
			}
		})
	}
}

// TestDetect_CoreCountIsMinOfCandidates verifies the reconciliation rule:
// quota=4, cpuset=3, nproc=8 resolves to 3.
func TestDetect_CoreCountIsMinOfCandidates(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		"sys/fs/cgroup/cpu/cpu.cfs_quota_us":  file("400000"),
		"sys/fs/cgroup/cpu/cpu.cfs_period_us": file("100000"),
		"sys/fs/cgroup/cpuset/cpuset.cpus":    file("0-2"),
	}, fakeProcs{n: 8})

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvNumberOfCores)
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

// TestDetect_FailedCandidateExcludedFromMin verifies a candidate that
// cannot be computed is dropped from the minimum, not treated as zero.
func TestDetect_FailedCandidateExcludedFromMin(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{
		// No quota limit, no cpuset files at all.
		"sys/fs/cgroup/cpu/cpu.cfs_quota_us": file("-1"),
	}, fakeProcs{n: 4})

	env, err := d.Detect()
	require.NoError(t, err)

	v, ok := env.Lookup(model.EnvNumberOfCores)
	require.True(t, ok)
	assert.Equal(t, "4", v)
}

// TestDetect_AllCoreSourcesUndetermined verifies NUMBER_OF_CORES is absent
// when every candidate fails.
func TestDetect_AllCoreSourcesUndetermined(t *testing.T) {
	d, _ := newTestDetector(fstest.MapFS{}, notFoundProcs)

	env, err := d.Detect()
	require.NoError(t, err)

	_, ok := env.Lookup(model.EnvNumberOfCores)
	assert.False(t, ok)
}

// TestDetect_NprocFailurePropagates verifies the detector's one fatal path:
// an unexpected processor-count execution failure aborts detection instead
// of degrading to omission.
func TestDetect_NprocFailurePropagates(t *testing.T) {
	boom := errors.New("fork failed")
	d, _ := newTestDetector(fstest.MapFS{}, fakeProcs{err: boom})

	_, err := d.Detect()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

// TestDetect_NprocBadOutputWarned verifies that garbage output from the
// utility is downgraded to a warning, not a fatal error.
func TestDetect_NprocBadOutputWarned(t *testing.T) {
	d, warnings := newTestDetector(fstest.MapFS{},
		fakeProcs{err: fmt.Errorf("%w: nproc printed %q", ErrBadProcessorCount, "4 cores")})

	env, err := d.Detect()
	require.NoError(t, err)

	_, ok := env.Lookup(model.EnvNumberOfCores)
	assert.False(t, ok)
	assert.Contains(t, warnings.String(), "Warning: Can't detect number of processors")
}

// TestDetect_NoCgroupHost is the end-to-end scenario for a non-root,
// cgroup-unaware host: no cgroup files at all, nproc reporting 4.
func TestDetect_NoCgroupHost(t *testing.T) {
	d, warnings := newTestDetector(fstest.MapFS{}, fakeProcs{n: 4})

	env, err := d.Detect()
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, env.Render(out))
	assert.Equal(t,
		"MAX_MEMORY_LIMIT_IN_BYTES=9223372036854775807\nNUMBER_OF_CORES=4\n",
		out.String())

	// Memory and cpuset were undetectable; both warned, every invocation.
	assert.Contains(t, warnings.String(), "Warning: Can't detect memory limit")
	assert.Contains(t, warnings.String(), "Warning: Can't detect cpuset")
}

// TestDetect_Idempotent verifies two detections over unchanged filesystem
// state render byte-identical output.
func TestDetect_Idempotent(t *testing.T) {
	fsys := fstest.MapFS{
		"sys/fs/cgroup/memory/memory.limit_in_bytes": file("1073741824"),
		"sys/fs/cgroup/cpu/cpu.cfs_quota_us":         file("200000"),
		"sys/fs/cgroup/cpu/cpu.cfs_period_us":        file("100000"),
		"sys/fs/cgroup/cpuset/cpuset.cpus":           file("0-3"),
	}

	render := func() string {
		d, _ := newTestDetector(fsys, fakeProcs{n: 8})
		env, err := d.Detect()
		require.NoError(t, err)
		out := &bytes.Buffer{}
		require.NoError(t, env.Render(out))
		return out.String()
	}

	first := render()
	second := render()
	assert.Equal(t, first, second)
	assert.Equal(t,
		"MAX_MEMORY_LIMIT_IN_BYTES=9223372036854775807\n"+
			"MEMORY_LIMIT_IN_BYTES=1073741824\n"+
			"NUMBER_OF_CORES=2\n",
		first)
}
