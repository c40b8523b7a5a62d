package probe

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	constants "vpsdash/config"
	"vpsdash/pkg/utils"
)

// MemoryUsage reports used RAM percentage
type MemoryUsage struct {
	name       string
	thresholds Thresholds
	virtual    func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewMemoryUsage(name string, t Thresholds) *MemoryUsage {
	return &MemoryUsage{
		name:       name,
		thresholds: t.orDefault(Thresholds{Warn: constants.DEFAULT_MEMORY_WARN, Crit: constants.DEFAULT_MEMORY_CRIT}),
		virtual:    mem.VirtualMemoryWithContext,
	}
}

func (p *MemoryUsage) Name() string { return p.name }

func (p *MemoryUsage) Sample(ctx context.Context) Result {
	vm, err := p.virtual(ctx)
	if err != nil {
		return Unknown(p.name, fmt.Errorf("read memory: %w", err))
	}

	used := utils.Round(vm.UsedPercent, 1)
	msg := fmt.Sprintf("%s used (%s / %s)", utils.FormatPercentage(used),
		utils.FormatBytes(int64(vm.Used)), utils.FormatBytes(int64(vm.Total)))
	return percentResult(p.name, p.thresholds.Evaluate(used), used, msg)
}

// DiskSpace reports used percentage of the filesystem holding path
type DiskSpace struct {
	name       string
	path       string
	thresholds Thresholds
	usage      func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewDiskSpace(name, path string, t Thresholds) *DiskSpace {
	return &DiskSpace{
		name:       name,
		path:       path,
		thresholds: t.orDefault(Thresholds{Warn: constants.DEFAULT_DISK_WARN, Crit: constants.DEFAULT_DISK_CRIT}),
		usage:      disk.UsageWithContext,
	}
}

func (p *DiskSpace) Name() string { return p.name }

func (p *DiskSpace) Sample(ctx context.Context) Result {
	u, err := p.usage(ctx, p.path)
	if err != nil {
		return Unknown(p.name, fmt.Errorf("disk usage %s: %w", p.path, err))
	}

	used := utils.Round(u.UsedPercent, 1)
	msg := fmt.Sprintf("%s: %s used (%s free of %s)", p.path, utils.FormatPercentage(used),
		utils.FormatBytes(int64(u.Free)), utils.FormatBytes(int64(u.Total)))
	return percentResult(p.name, p.thresholds.Evaluate(used), used, msg)
}
