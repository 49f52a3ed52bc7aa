package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const procVersion = "Linux version 6.1.0-18-amd64 (debian-kernel@lists.debian.org) #1 SMP PREEMPT_DYNAMIC x86_64\n"

// newSystemInfoSampler stubs the gopsutil-backed counters so results only
// depend on the fixture files
func newSystemInfoSampler(r *hostfs.Resolver) *SystemInfoSampler {
	s := NewSystemInfoSampler(r, zap.NewNop())
	s.users = func(context.Context) (int, error) { return 0, errors.New("no utmp") }
	s.processes = func(context.Context) (int, error) { return 0, errors.New("no proc") }
	return s
}

func TestSystemInfoSampler_AllSources(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"etc/os-release": "NAME=\"Debian GNU/Linux\"\nPRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\nPRETTY_NAME=\"Second\"\n",
		"etc/hostname":   "  web-01  \nignored\n",
		"proc/version":   procVersion,
		"proc/uptime":    "12345.67 54321.00\n",
	})
	s := newSystemInfoSampler(r)
	s.users = func(context.Context) (int, error) { return 3, nil }
	s.processes = func(context.Context) (int, error) { return 212, nil }

	got, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SystemInfo{
		OS:           ptr("Debian GNU/Linux 12 (bookworm)"),
		Hostname:     ptr("web-01"),
		Architecture: ptr("x86_64"),
		UptimeSec:    ptr(uint64(12345)),
		Users:        ptr(3),
		Processes:    ptr(212),
	}, got)
}

func TestSystemInfoSampler_NoOSRelease(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"etc/hostname": "db-02\n",
		"proc/version": procVersion,
		"proc/uptime":  "99.99 10.00\n",
	})

	got, err := newSystemInfoSampler(r).Sample(context.Background())
	require.NoError(t, err)

	assert.Nil(t, got.OS)
	require.NotNil(t, got.Hostname)
	assert.Equal(t, "db-02", *got.Hostname)
	require.NotNil(t, got.Architecture)
	assert.Equal(t, "x86_64", *got.Architecture)
	require.NotNil(t, got.UptimeSec)
	assert.Equal(t, uint64(99), *got.UptimeSec)
	assert.Nil(t, got.Users)
	assert.Nil(t, got.Processes)
}

func TestSystemInfoSampler_OSReleaseFallback(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"usr/lib/os-release": "PRETTY_NAME='Alpine Linux v3.19'\n",
	})

	got, err := newSystemInfoSampler(r).Sample(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got.OS)
	assert.Equal(t, "Alpine Linux v3.19", *got.OS)
}

func TestSystemInfoSampler_MalformedSources(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"etc/os-release": "NAME=Foo\n",
		"etc/hostname":   "\n",
		"proc/version":   "   \n",
		"proc/uptime":    "not-a-number 1\n",
	})

	_, err := newSystemInfoSampler(r).Sample(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSystemInfoSampler_Idempotent(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"etc/os-release": "PRETTY_NAME=\"Ubuntu 24.04 LTS\"\n",
		"etc/hostname":   "node\n",
		"proc/version":   procVersion,
		"proc/uptime":    "10.5 1.0\n",
	})
	s := newSystemInfoSampler(r)

	first, err := s.Sample(context.Background())
	require.NoError(t, err)
	second, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
