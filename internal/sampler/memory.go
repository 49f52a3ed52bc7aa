package sampler

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stone-age-io/sysmetrics/internal/utils"
)

// MemorySampler reads RAM and swap figures from the memory-info source
type MemorySampler struct {
	resolver *hostfs.Resolver
}

func NewMemorySampler(r *hostfs.Resolver) *MemorySampler {
	return &MemorySampler{resolver: r}
}

// Sample reports used memory as total minus available, since reclaimable
// cache makes available the meaningful figure
func (s *MemorySampler) Sample(ctx context.Context) (MemoryStats, error) {
	if err := ctx.Err(); err != nil {
		return MemoryStats{}, err
	}

	f, err := openSource(s.resolver, hostfs.MemInfo)
	if err != nil {
		return MemoryStats{}, err
	}
	defer f.Close()

	values := make(map[string]uint64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		// Values are reported in kB unless no unit is given
		if len(fields) >= 3 && fields[2] == "kB" {
			v *= 1024
		}
		values[strings.TrimSuffix(fields[0], ":")] = v
	}
	if err := scanner.Err(); err != nil {
		return MemoryStats{}, fmt.Errorf("meminfo: %w: %v", ErrParseFailure, err)
	}

	total, ok := values["MemTotal"]
	if !ok || total == 0 {
		return MemoryStats{}, fmt.Errorf("meminfo: %w: MemTotal missing", ErrParseFailure)
	}

	available, ok := values["MemAvailable"]
	if !ok {
		// Kernels before 3.14 do not report MemAvailable
		available = values["MemFree"] + values["Buffers"] + values["Cached"]
	}
	if available > total {
		available = total
	}
	used := total - available

	swapTotal := values["SwapTotal"]
	swapFree := values["SwapFree"]
	var swapUsed uint64
	if swapTotal > swapFree {
		swapUsed = swapTotal - swapFree
	}

	return MemoryStats{
		TotalMB:      utils.BytesToMB(total),
		UsedMB:       utils.BytesToMB(used),
		AvailableMB:  utils.BytesToMB(available),
		UsagePercent: utils.Percent(used, total),
		SwapTotalMB:  utils.BytesToMB(swapTotal),
		SwapUsedMB:   utils.BytesToMB(swapUsed),
		SwapPercent:  utils.Percent(swapUsed, swapTotal),
	}, nil
}
