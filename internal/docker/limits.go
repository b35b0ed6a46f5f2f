// limits.go translates a container's configured HostConfig resources into
// the resource-limit environment contract.
//
// This is the complement of the in-container cgroup detector: the detector
// reads what the kernel actually enforces from inside, while InspectLimits
// reads what was requested at `docker run` time from outside. Both emit the
// same variables with the same omission semantics, so the supervisor can
// consume either view interchangeably.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"

	"github.com/shinji-kodama/dblimits/internal/cgroup"
	"github.com/shinji-kodama/dblimits/internal/model"
)

// nanoCPUsPerCore is the Docker API's fixed-point scale for CPU quotas:
// NanoCPUs is expressed in billionths of a core.
const nanoCPUsPerCore = 1_000_000_000

// InspectLimits reads the resource limits configured on a container and
// returns them as an Environment.
//
// ref may be a container ID, ID prefix, or name — whatever the Docker API
// accepts for inspect.
func (c *Client) InspectLimits(ctx context.Context, ref string) (model.Environment, error) {
	info, err := c.inner.ContainerInspect(ctx, ref)
	if err != nil {
		return model.Environment{}, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("cannot inspect container %q", ref), err)
	}
	return limitsFromHostConfig(info.HostConfig), nil
}

// limitsFromHostConfig builds the limit environment from a container's
// HostConfig. Unset limits (zero values in the Docker API) are omitted,
// mirroring the detector's treatment of absent cgroup files.
func limitsFromHostConfig(hc *container.HostConfig) model.Environment {
	env := model.NewEnvironment()

	if hc != nil && hc.Memory > 0 {
		env.SetInt(model.EnvMemoryLimit, hc.Memory)
		if hc.Memory >= model.NoMemoryLimitThreshold {
			env.Set(model.EnvNoMemoryLimit, "true")
		}
	}

	env.SetInt(model.EnvMaxMemoryLimit, model.MaxMemoryLimitBytes)

	if cores, ok := coreCountFromHostConfig(hc); ok {
		env.SetInt(model.EnvNumberOfCores, cores)
	}

	return env
}

// coreCountFromHostConfig derives the core count as the minimum of the
// NanoCPUs quota and the cpuset pinning, excluding whichever is unset —
// the same min-of-candidates rule the cgroup detector applies.
func coreCountFromHostConfig(hc *container.HostConfig) (int64, bool) {
	if hc == nil {
		return 0, false
	}

	var count int64
	found := false
	consider := func(n int64, ok bool) {
		if ok && (!found || n < count) {
			count, found = n, true
		}
	}

	if hc.NanoCPUs > 0 {
		cores := hc.NanoCPUs / nanoCPUsPerCore
		// A fractional quota below one full core is excluded rather than
		// contributing a zero, matching the in-container detector.
		consider(cores, cores >= 1)
	}

	if hc.CpusetCpus != "" {
		// CpusetCpus uses the same list syntax as the kernel cpuset files.
		n, err := cgroup.CountCPUSet(hc.CpusetCpus)
		consider(n, err == nil)
	}

	return count, found
}
