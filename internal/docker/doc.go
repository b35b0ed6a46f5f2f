// Package docker provides the outside-the-container view of resource
// limits: instead of reading the cgroup filesystem from within, it asks the
// Docker Engine API what limits were configured on a container's
// HostConfig (memory ceiling, NanoCPUs quota, cpuset pinning).
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - translating a container's HostConfig resource settings into the same
//     KEY=VALUE environment contract the in-container detector produces
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
