package hostfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/common"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolve(t *testing.T) {
	host := t.TempDir()
	local := t.TempDir()

	writeFile(t, filepath.Join(host, "proc/meminfo"), "MemTotal: 1 kB\n")
	writeFile(t, filepath.Join(local, "proc/meminfo"), "MemTotal: 2 kB\n")
	writeFile(t, filepath.Join(local, "proc/cpuinfo"), "processor : 0\n")
	writeFile(t, filepath.Join(host, "usr/lib/os-release"), "PRETTY_NAME=\"Host\"\n")

	r := NewWithLocalRoot(host, local)

	tests := []struct {
		name      string
		resource  string
		wantPath  string
		wantFound bool
	}{
		{
			name:      "host copy preferred",
			resource:  MemInfo,
			wantPath:  filepath.Join(host, "proc/meminfo"),
			wantFound: true,
		},
		{
			name:      "falls back to local",
			resource:  CPUInfo,
			wantPath:  filepath.Join(local, "proc/cpuinfo"),
			wantFound: true,
		},
		{
			name:      "secondary candidate under host",
			resource:  OSRelease,
			wantPath:  filepath.Join(host, "usr/lib/os-release"),
			wantFound: true,
		},
		{
			name:      "missing everywhere names local path",
			resource:  NetDev,
			wantPath:  filepath.Join(local, "proc/net/dev"),
			wantFound: false,
		},
		{
			name:      "unknown resource",
			resource:  "nope",
			wantPath:  "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, found := r.Resolve(tt.resource)
			if path != tt.wantPath {
				t.Errorf("Resolve(%q) path = %q, want %q", tt.resource, path, tt.wantPath)
			}
			if found != tt.wantFound {
				t.Errorf("Resolve(%q) found = %v, want %v", tt.resource, found, tt.wantFound)
			}
		})
	}
}

func TestResolve_NoHostRoot(t *testing.T) {
	local := t.TempDir()
	writeFile(t, filepath.Join(local, "etc/hostname"), "box\n")

	r := NewWithLocalRoot("", local)
	path, found := r.Resolve(Hostname)
	if !found || path != filepath.Join(local, "etc/hostname") {
		t.Errorf("Resolve(hostname) = %q, %v", path, found)
	}
	if r.InHost(path) {
		t.Error("InHost() = true with host lookup disabled")
	}
}

func TestInHost(t *testing.T) {
	r := New("/host")

	tests := []struct {
		path string
		want bool
	}{
		{"/host", true},
		{"/host/proc/mounts", true},
		{"/hostile/proc/mounts", false},
		{"/proc/mounts", false},
	}

	for _, tt := range tests {
		if got := r.InHost(tt.path); got != tt.want {
			t.Errorf("InHost(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWithContext(t *testing.T) {
	host := t.TempDir()
	writeFile(t, filepath.Join(host, "proc/stat"), "cpu  1 2 3 4 5 6 7 8\n")

	r := NewWithLocalRoot(host, t.TempDir())
	ctx := r.WithContext(context.Background())

	env, ok := ctx.Value(common.EnvKey).(common.EnvMap)
	if !ok {
		t.Fatal("context does not carry a gopsutil EnvMap")
	}
	if got := env[common.HostProcEnvKey]; got != filepath.Join(host, "proc") {
		t.Errorf("HOST_PROC = %q, want %q", got, filepath.Join(host, "proc"))
	}
	if _, ok := env[common.HostEtcEnvKey]; ok {
		t.Error("HOST_ETC set although no etc directory exists")
	}
}

func TestEnv(t *testing.T) {
	tests := []struct {
		name     string
		hostFile []string
		local    []string
		hostDirs []string
		wantProc string // relative to "host" or "local"
		wantVar  string
		wantEtc  string
	}{
		{
			name:     "host proc mounted",
			hostFile: []string{"proc/stat", "var/run/utmp", "etc/hostname"},
			local:    []string{"proc/stat"},
			wantProc: "host/proc",
			wantVar:  "host/var",
			wantEtc:  "host/etc",
		},
		{
			name:     "empty host proc falls back to local",
			hostDirs: []string{"proc", "var", "etc"},
			local:    []string{"proc/stat", "var/run/utmp"},
			wantProc: "local/proc",
			wantVar:  "local/var",
		},
		{
			name:     "nothing anywhere",
			hostDirs: []string{"proc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			host := filepath.Join(base, "host")
			local := filepath.Join(base, "local")
			for _, d := range tt.hostDirs {
				if err := os.MkdirAll(filepath.Join(host, d), 0o755); err != nil {
					t.Fatal(err)
				}
			}
			for _, f := range tt.hostFile {
				writeFile(t, filepath.Join(host, f), "x\n")
			}
			for _, f := range tt.local {
				writeFile(t, filepath.Join(local, f), "x\n")
			}

			env := NewWithLocalRoot(host, local).Env()

			check := func(key, want string) {
				got, ok := env[key]
				if want == "" {
					if ok {
						t.Errorf("%s = %q, want unset", key, got)
					}
					return
				}
				if got != filepath.Join(base, want) {
					t.Errorf("%s = %q, want %q", key, got, filepath.Join(base, want))
				}
			}
			check(common.HostProcEnvKey, tt.wantProc)
			check(common.HostVarEnvKey, tt.wantVar)
			check(common.HostEtcEnvKey, tt.wantEtc)
		})
	}
}
