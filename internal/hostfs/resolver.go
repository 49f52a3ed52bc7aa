// Package hostfs decides where pseudo-filesystem sources are read from.
//
// When the process runs inside a container with the host's / bind-mounted
// under a prefix (for example -v /:/host:ro), reading /proc/meminfo describes
// the container, not the machine. A Resolver maps logical resource names to
// paths under that prefix when they exist there, and to the local paths
// otherwise. It never mutates process-wide state, so one Resolver can be
// shared by samplers running concurrently
package hostfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/common"
)

// DefaultHostRoot is the conventional mount point of the host filesystem
// inside a container
const DefaultHostRoot = "/host"

// Logical resource names understood by Resolve
const (
	CPUInfo   = "cpuinfo"
	Stat      = "stat"
	MemInfo   = "meminfo"
	Mounts    = "mounts"
	NetDev    = "net/dev"
	Uptime    = "uptime"
	Version   = "version"
	OSRelease = "os-release"
	Hostname  = "hostname"
	Utmp      = "utmp"
)

// resources maps a logical name to its candidate paths relative to a root,
// in order of preference
var resources = map[string][]string{
	CPUInfo:   {"proc/cpuinfo"},
	Stat:      {"proc/stat"},
	MemInfo:   {"proc/meminfo"},
	Mounts:    {"proc/mounts"},
	NetDev:    {"proc/net/dev"},
	Uptime:    {"proc/uptime"},
	Version:   {"proc/version"},
	OSRelease: {"etc/os-release", "usr/lib/os-release"},
	Hostname:  {"etc/hostname"},
	Utmp:      {"var/run/utmp"},
}

// Resolver maps logical resource names to filesystem paths.
// It is immutable after construction
type Resolver struct {
	hostRoot  string
	localRoot string
}

// New returns a Resolver preferring paths under hostRoot.
// An empty hostRoot disables the host lookup entirely
func New(hostRoot string) *Resolver {
	return NewWithLocalRoot(hostRoot, "/")
}

// NewWithLocalRoot is like New but reads local sources relative to localRoot
// instead of /
func NewWithLocalRoot(hostRoot, localRoot string) *Resolver {
	if hostRoot != "" {
		hostRoot = filepath.Clean(hostRoot)
	}
	if localRoot == "" {
		localRoot = "/"
	}
	return &Resolver{
		hostRoot:  hostRoot,
		localRoot: filepath.Clean(localRoot),
	}
}

// HostRoot returns the configured host prefix, or "" when disabled
func (r *Resolver) HostRoot() string {
	return r.hostRoot
}

// Resolve returns the path to read for resource. The host-mounted copy is
// preferred when it exists; otherwise the local path is returned. found is
// false when the resource is unknown or neither location exists, in which
// case path still names the local location (or is empty for unknown names)
func (r *Resolver) Resolve(resource string) (path string, found bool) {
	candidates, ok := resources[resource]
	if !ok {
		return "", false
	}

	if r.hostRoot != "" {
		for _, rel := range candidates {
			p := filepath.Join(r.hostRoot, rel)
			if exists(p) {
				return p, true
			}
		}
	}

	for _, rel := range candidates {
		p := filepath.Join(r.localRoot, rel)
		if exists(p) {
			return p, true
		}
	}

	return filepath.Join(r.localRoot, candidates[0]), false
}

// InHost reports whether path lies under the host prefix
func (r *Resolver) InHost(path string) bool {
	if r.hostRoot == "" {
		return false
	}
	return path == r.hostRoot || strings.HasPrefix(path, r.hostRoot+string(filepath.Separator))
}

// Env returns the gopsutil environment overrides matching this Resolver.
// Each root is taken from the file gopsutil actually reads under it, so an
// empty host mount (for example /host/proc without its procfs submount)
// falls back to the local root the same way Resolve does
func (r *Resolver) Env() common.EnvMap {
	env := common.EnvMap{}
	if p, ok := r.root(Stat, 1); ok {
		env[common.HostProcEnvKey] = p
	}
	if p, ok := r.root(Hostname, 1); ok {
		env[common.HostEtcEnvKey] = p
	}
	if p, ok := r.root(Utmp, 2); ok {
		env[common.HostVarEnvKey] = p
	}
	return env
}

// root resolves resource and strips depth trailing path elements from it
func (r *Resolver) root(resource string, depth int) (string, bool) {
	p, ok := r.Resolve(resource)
	if !ok {
		return "", false
	}
	for range depth {
		p = filepath.Dir(p)
	}
	return p, true
}

// WithContext scopes the gopsutil path overrides to ctx. Only calls made
// with the returned context see them; the process environment is untouched
func (r *Resolver) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, common.EnvKey, r.Env())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
