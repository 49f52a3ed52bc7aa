package sampler

import (
	"context"
	"testing"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const netDevHeader = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
`

func TestNetworkSampler_AllZeroInterface(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"proc/net/dev": netDevHeader + "  eth0:       0       0    0    0    0     0          0         0        0       0    0    0    0     0       0          0\n",
	})

	got, err := NewNetworkSampler(r, zap.NewNop()).Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, NetworkStats{}, got["eth0"])
}

func TestNetworkSampler_Counters(t *testing.T) {
	r := fakeRoot(t, map[string]string{
		"proc/net/dev": netDevHeader +
			"    lo: 1000 10 0 0 0 0 0 0 1000 10 0 0 0 0 0 0\n" +
			"  eth0:123456 789 1 2 0 0 0 3 654321 987 4 5 0 0 0 0\n" +
			"  bad0: 1 2 3\n" +
			"  bad1: 1 2 3 4 5 6 7 8 x 10 11 12 13 14 15 16\n" +
			"no separator here\n",
	})

	got, err := NewNetworkSampler(r, zap.NewNop()).Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, NetworkStats{
		BytesRecv:   123456,
		PacketsRecv: 789,
		ErrIn:       1,
		DropIn:      2,
		BytesSent:   654321,
		PacketsSent: 987,
		ErrOut:      4,
		DropOut:     5,
	}, got["eth0"])
	assert.Equal(t, uint64(1000), got["lo"].BytesSent)
}

func TestNetworkSampler_HeaderOnly(t *testing.T) {
	r := fakeRoot(t, map[string]string{"proc/net/dev": netDevHeader})

	got, err := NewNetworkSampler(r, zap.NewNop()).Sample(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNetworkSampler_MissingSource(t *testing.T) {
	got, err := NewNetworkSampler(fakeRoot(t, nil), zap.NewNop()).Sample(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Nil(t, got)
}

func TestParseNetDevLine_InterfaceWithColon(t *testing.T) {
	iface, _, err := parseNetDevLine("eth0:1: 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16")
	require.NoError(t, err)
	assert.Equal(t, "eth0:1", iface)
}

func TestNetworkSampler_CountersNonDecreasing(t *testing.T) {
	root := t.TempDir()
	write := func(eth0 string) {
		writeFiles(t, root, map[string]string{
			"proc/net/dev": netDevHeader +
				"    lo: 1000 10 0 0 0 0 0 0 1000 10 0 0 0 0 0 0\n" +
				"  eth0:" + eth0 + "\n",
		})
	}
	s := NewNetworkSampler(hostfs.NewWithLocalRoot("", root), zap.NewNop())

	write("123456 789 1 2 0 0 0 3 654321 987 4 5 0 0 0 0")
	first, err := s.Sample(context.Background())
	require.NoError(t, err)

	write("223456 889 1 3 0 0 0 3 754321 1087 4 6 0 0 0 0")
	second, err := s.Sample(context.Background())
	require.NoError(t, err)

	for iface, prev := range first {
		cur, ok := second[iface]
		require.True(t, ok, "interface %s missing from second sample", iface)

		fields := []struct {
			name      string
			prev, cur uint64
		}{
			{"bytes_sent", prev.BytesSent, cur.BytesSent},
			{"bytes_recv", prev.BytesRecv, cur.BytesRecv},
			{"packets_sent", prev.PacketsSent, cur.PacketsSent},
			{"packets_recv", prev.PacketsRecv, cur.PacketsRecv},
			{"errin", prev.ErrIn, cur.ErrIn},
			{"errout", prev.ErrOut, cur.ErrOut},
			{"dropin", prev.DropIn, cur.DropIn},
			{"dropout", prev.DropOut, cur.DropOut},
		}
		for _, f := range fields {
			assert.GreaterOrEqual(t, f.cur, f.prev, "%s %s decreased", iface, f.name)
		}
	}
	assert.Greater(t, second["eth0"].BytesRecv, first["eth0"].BytesRecv)
}
