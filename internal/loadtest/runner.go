package loadtest

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hos-care/console/internal/client"
)

const controlInterval = 100 * time.Millisecond

// Options configures a run. Admin enables the checks marked Admin. Think
// is the pause at the end of every iteration; zero means 1s.
type Options struct {
	Client *client.HTTPClient
	Admin  bool
	Stages []Stage
	Checks []Check
	Think  time.Duration
}

// CheckResult counts outcomes of one named check. Codes counts failing
// HTTP statuses, with zero for transport errors.
type CheckResult struct {
	Name   string
	Passed int
	Failed int
	Codes  map[int]int
}

// Latency summarises request durations.
type Latency struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	total time.Duration
}

func (l Latency) Avg() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.total / time.Duration(l.Count)
}

func (l *Latency) add(d time.Duration) {
	if l.Count == 0 || d < l.Min {
		l.Min = d
	}
	if d > l.Max {
		l.Max = d
	}
	l.Count++
	l.total += d
}

// Report is the outcome of a run.
type Report struct {
	Started    time.Time
	Elapsed    time.Duration
	Iterations int
	PeakVUs    int
	Checks     []CheckResult
	Latency    Latency
	Self       Usage
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Failed > 0 {
			return true
		}
	}
	return false
}

type recorder struct {
	mu         sync.Mutex
	checks     map[string]*CheckResult
	latency    Latency
	iterations int
}

func (r *recorder) record(name string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.checks[name]
	if !ok {
		res = &CheckResult{Name: name, Codes: map[int]int{}}
		r.checks[name] = res
	}
	r.latency.add(d)
	if err == nil {
		res.Passed++
		return
	}
	res.Failed++
	res.Codes[statusOf(err)]++
}

func (r *recorder) iteration() {
	r.mu.Lock()
	r.iterations++
	r.mu.Unlock()
}

// Run drives virtual users through opts.Stages and returns the report. It
// stops early when ctx is cancelled and still reports what ran.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Client == nil {
		return nil, errors.New("loadtest: client required")
	}
	if len(opts.Stages) == 0 {
		opts.Stages = DefaultStages
	}
	if opts.Checks == nil {
		opts.Checks = DefaultChecks
	}
	if opts.Think <= 0 {
		opts.Think = time.Second
	}
	var checks []Check
	for _, c := range opts.Checks {
		if c.Admin && !opts.Admin {
			continue
		}
		checks = append(checks, c)
	}
	if len(checks) == 0 {
		return nil, errors.New("loadtest: no checks to run")
	}

	rec := &recorder{checks: make(map[string]*CheckResult)}
	for _, c := range checks {
		rec.checks[c.Name] = &CheckResult{Name: c.Name, Codes: map[int]int{}}
	}

	usage, err := newSampler()
	if err != nil {
		log.Printf("loadtest: self usage unavailable: %v", err)
	}
	usageCtx, stopUsage := context.WithCancel(ctx)
	usageDone := make(chan Usage, 1)
	go func() { usageDone <- usage.run(usageCtx, time.Second) }()

	started := time.Now()
	total := TotalDuration(opts.Stages)

	var (
		wg      sync.WaitGroup
		vus     []context.CancelFunc
		peakVUs int
	)
	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

control:
	for {
		elapsed := time.Since(started)
		if elapsed >= total {
			break
		}
		want := TargetAt(opts.Stages, elapsed)
		for len(vus) < want {
			vuCtx, cancel := context.WithCancel(ctx)
			vus = append(vus, cancel)
			wg.Add(1)
			go func() {
				defer wg.Done()
				runVU(vuCtx, opts.Client, checks, opts.Think, rec)
			}()
		}
		for len(vus) > want {
			last := len(vus) - 1
			vus[last]()
			vus = vus[:last]
		}
		if len(vus) > peakVUs {
			peakVUs = len(vus)
		}

		select {
		case <-ctx.Done():
			break control
		case <-ticker.C:
		}
	}

	for _, cancel := range vus {
		cancel()
	}
	wg.Wait()
	stopUsage()

	rep := &Report{
		Started:    started,
		Elapsed:    time.Since(started),
		Iterations: rec.iterations,
		PeakVUs:    peakVUs,
		Latency:    rec.latency,
		Self:       <-usageDone,
	}
	for _, c := range rec.checks {
		rep.Checks = append(rep.Checks, *c)
	}
	sort.Slice(rep.Checks, func(i, j int) bool { return rep.Checks[i].Name < rep.Checks[j].Name })
	return rep, nil
}

// runVU loops until ctx ends. An iteration in flight when ctx ends is
// abandoned and not counted.
func runVU(ctx context.Context, c *client.HTTPClient, checks []Check, think time.Duration, rec *recorder) {
	for {
		for _, chk := range checks {
			start := time.Now()
			err := chk.Run(ctx, c)
			if ctx.Err() != nil {
				return
			}
			rec.record(chk.Name, time.Since(start), err)
		}
		rec.iteration()

		select {
		case <-ctx.Done():
			return
		case <-time.After(think):
		}
	}
}
