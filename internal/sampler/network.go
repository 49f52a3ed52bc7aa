package sampler

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"go.uber.org/zap"
)

// netDevFields is the number of counter columns after "iface:" in net/dev
const netDevFields = 16

// NetworkSampler parses per-interface counters from the network-device
// source. Malformed lines are skipped individually
type NetworkSampler struct {
	resolver *hostfs.Resolver
	logger   *zap.Logger
}

func NewNetworkSampler(r *hostfs.Resolver, logger *zap.Logger) *NetworkSampler {
	return &NetworkSampler{
		resolver: r,
		logger:   logger,
	}
}

// Sample returns one entry per listed interface, including interfaces whose
// counters are all zero
func (s *NetworkSampler) Sample(ctx context.Context) (map[string]NetworkStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := openSource(s.resolver, hostfs.NetDev)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := make(map[string]NetworkStats)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		// Two header lines
		if lineNo <= 2 {
			continue
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		iface, ns, err := parseNetDevLine(line)
		if err != nil {
			s.logger.Debug("Skipping malformed net/dev line",
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		stats[iface] = ns
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("net/dev: %w: %v", ErrParseFailure, err)
	}

	return stats, nil
}

// parseNetDevLine splits "  eth0: 1 2 3 ..." into the interface name and
// counters. The receive block comes first, then transmit
func parseNetDevLine(line string) (string, NetworkStats, error) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", NetworkStats{}, fmt.Errorf("%w: missing interface separator", ErrParseFailure)
	}

	iface := strings.TrimSpace(line[:idx])
	if iface == "" {
		return "", NetworkStats{}, fmt.Errorf("%w: empty interface name", ErrParseFailure)
	}

	fields := strings.Fields(line[idx+1:])
	if len(fields) < netDevFields {
		return "", NetworkStats{}, fmt.Errorf("%w: %s has %d fields, want %d",
			ErrParseFailure, iface, len(fields), netDevFields)
	}

	var v [netDevFields]uint64
	for i := 0; i < netDevFields; i++ {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return "", NetworkStats{}, fmt.Errorf("%w: %s field %d: %v", ErrParseFailure, iface, i, err)
		}
		v[i] = n
	}

	return iface, NetworkStats{
		BytesRecv:   v[0],
		PacketsRecv: v[1],
		ErrIn:       v[2],
		DropIn:      v[3],
		BytesSent:   v[8],
		PacketsSent: v[9],
		ErrOut:      v[10],
		DropOut:     v[11],
	}, nil
}
