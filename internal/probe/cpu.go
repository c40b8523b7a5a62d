package probe

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"

	constants "vpsdash/config"
	"vpsdash/pkg/utils"
)

// primeWindow is how long the first sample waits to get a usable delta
const primeWindow = 250 * time.Millisecond

// CPULoad reports CPU busy percentage from cpu.Times deltas between samples
type CPULoad struct {
	name       string
	thresholds Thresholds

	mu     sync.Mutex
	last   cpu.TimesStat
	primed bool

	times   func(ctx context.Context) ([]cpu.TimesStat, error)
	loadAvg func(ctx context.Context) (*load.AvgStat, error)
}

// NewCPULoad creates a CPU probe and records the baseline reading
func NewCPULoad(name string, t Thresholds) *CPULoad {
	p := &CPULoad{
		name:       name,
		thresholds: t.orDefault(Thresholds{Warn: constants.DEFAULT_CPU_WARN, Crit: constants.DEFAULT_CPU_CRIT}),
		times: func(ctx context.Context) ([]cpu.TimesStat, error) {
			return cpu.TimesWithContext(ctx, false)
		},
		loadAvg: load.AvgWithContext,
	}
	if times, err := p.times(context.Background()); err == nil && len(times) > 0 {
		p.last = times[0]
		p.primed = true
	}
	return p
}

func (p *CPULoad) Name() string { return p.name }

func (p *CPULoad) Sample(ctx context.Context) Result {
	busy, err := p.busy(ctx)
	if err != nil {
		return Unknown(p.name, fmt.Errorf("read cpu times: %w", err))
	}

	busy = utils.Round(busy, 1)
	msg := utils.FormatPercentage(busy) + " busy"
	if avg, err := p.loadAvg(ctx); err == nil {
		msg += fmt.Sprintf(", load %.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15)
	}
	return percentResult(p.name, p.thresholds.Evaluate(busy), busy, msg)
}

func (p *CPULoad) busy(ctx context.Context) (float64, error) {
	p.mu.Lock()
	last, primed := p.last, p.primed
	p.mu.Unlock()

	if !primed {
		first, err := p.read(ctx)
		if err != nil {
			return 0, err
		}
		select {
		case <-time.After(primeWindow):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		last = first
	}

	current, err := p.read(ctx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.last, p.primed = current, true
	p.mu.Unlock()

	return calculateBusy(last, current), nil
}

func (p *CPULoad) read(ctx context.Context) (cpu.TimesStat, error) {
	times, err := p.times(ctx)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, fmt.Errorf("no cpu times reported")
	}
	return times[0], nil
}

// calculateBusy returns the busy percentage between two readings, clamped to 0-100
func calculateBusy(t1, t2 cpu.TimesStat) float64 {
	t1All, t1Busy := getAllBusy(t1)
	t2All, t2Busy := getAllBusy(t2)

	if t2All <= t1All || t2Busy <= t1Busy {
		return 0
	}

	return clampPercent((t2Busy - t1Busy) / (t2All - t1All) * 100)
}

// getAllBusy returns (total, busy) CPU time. Guest time is already counted in
// user time on Linux, so it is removed from the total to match htop.
func getAllBusy(t cpu.TimesStat) (float64, float64) {
	tot := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq +
		t.Softirq + t.Steal + t.Guest + t.GuestNice

	if runtime.GOOS == "linux" {
		tot -= t.Guest
		tot -= t.GuestNice
	}

	busy := tot - t.Idle - t.Iowait
	return tot, busy
}

func clampPercent(value float64) float64 {
	return math.Min(100, math.Max(0, value))
}
