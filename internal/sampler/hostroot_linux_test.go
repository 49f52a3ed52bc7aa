package sampler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const procStatLine = "cpu  4705 356 584 3699176 23060 0 277 0 0 0\n"

// emptyHostProc mimics a host bind mount without its procfs submount: the
// host proc directory exists but holds nothing, while the local proc root is
// readable
func emptyHostProc(t *testing.T, local map[string]string, pids ...string) *hostfs.Resolver {
	t.Helper()
	base := t.TempDir()
	host := filepath.Join(base, "host")
	localRoot := filepath.Join(base, "local")

	require.NoError(t, os.MkdirAll(filepath.Join(host, "proc"), 0o755))
	writeFiles(t, localRoot, local)
	for _, pid := range pids {
		require.NoError(t, os.MkdirAll(filepath.Join(localRoot, "proc", pid), 0o755))
	}
	return hostfs.NewWithLocalRoot(host, localRoot)
}

func TestCPUSampler_EmptyHostProcFallsBack(t *testing.T) {
	r := emptyHostProc(t, map[string]string{
		"proc/cpuinfo": "processor\t: 0\nprocessor\t: 1\n",
		"proc/stat":    procStatLine,
	})

	s := NewCPUSampler(r, 10*time.Millisecond)

	times, err := s.readTimes(context.Background())
	require.NoError(t, err)
	assert.Greater(t, times.Idle, times.User)
	assert.Greater(t, times.User, 0.0)

	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalCores)
	assert.Equal(t, 0.0, got.UsagePercent)
}

func TestCPUSampler_NoReadableStat(t *testing.T) {
	r := emptyHostProc(t, map[string]string{"proc/cpuinfo": "processor\t: 0\n"})
	s := NewCPUSampler(r, 10*time.Millisecond)

	// Env carries no HOST_PROC here; point gopsutil at an empty directory
	// so the real /proc of the test machine is not read
	t.Setenv("HOST_PROC", t.TempDir())

	_, err := s.readTimes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSystemInfoSampler_ProcessesFromLocalProc(t *testing.T) {
	r := emptyHostProc(t, map[string]string{"proc/stat": procStatLine}, "1", "42", "self-not-a-pid")
	s := NewSystemInfoSampler(r, zap.NewNop())

	n, err := s.countProcesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSystemInfoSampler_NoPidsIsAbsent(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"proc/stat":    procStatLine,
		"etc/hostname": "web-01\n",
	})
	s := NewSystemInfoSampler(r, zap.NewNop())
	s.users = func(context.Context) (int, error) { return 0, ErrSourceUnavailable }

	_, err := s.countProcesses(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got.Processes)
	require.NotNil(t, got.Hostname)
}
