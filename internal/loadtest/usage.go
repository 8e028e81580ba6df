package loadtest

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the load generator's own resource use over a run. A generator
// pinned near 100% CPU measures itself, not the server.
type Usage struct {
	CPUPercent float64
	PeakRSS    uint64
	Samples    int
}

// sampler tracks this process through gopsutil.
type sampler struct {
	proc *process.Process
}

func newSampler() (*sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &sampler{proc: p}, nil
}

func (s *sampler) cpuSeconds(ctx context.Context) (float64, bool) {
	t, err := s.proc.TimesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	return t.User + t.System, true
}

func (s *sampler) rss(ctx context.Context) (uint64, bool) {
	m, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, false
	}
	return m.RSS, true
}

// run samples RSS every interval until ctx ends, then reports CPU use
// averaged over the whole window. A nil sampler reports nothing.
func (s *sampler) run(ctx context.Context, interval time.Duration) Usage {
	var u Usage
	if s == nil {
		<-ctx.Done()
		return u
	}

	bg := context.Background()
	start := time.Now()
	cpuStart, cpuOK := s.cpuSeconds(bg)

	sample := func() {
		if rss, ok := s.rss(bg); ok {
			u.Samples++
			if rss > u.PeakRSS {
				u.PeakRSS = rss
			}
		}
	}
	sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sample()
			if cpuEnd, ok := s.cpuSeconds(bg); ok && cpuOK {
				if wall := time.Since(start).Seconds(); wall > 0 {
					u.CPUPercent = (cpuEnd - cpuStart) / wall * 100
				}
			}
			return u
		case <-ticker.C:
			sample()
		}
	}
}
