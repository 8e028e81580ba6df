// Package loadtest runs a staged smoke load against the HOS API: a ramp of
// virtual users, each looping over a fixed set of checks.
package loadtest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Stage ramps the virtual user count linearly to Target over Duration.
type Stage struct {
	Duration time.Duration
	Target   int
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

// DefaultStages ramps to 5 users, then 10, then back down.
var DefaultStages = []Stage{
	{Duration: 10 * time.Second, Target: 5},
	{Duration: 20 * time.Second, Target: 10},
	{Duration: 10 * time.Second, Target: 0},
}

// ParseStages reads "10s:5,20s:10,10s:0".
func ParseStages(s string) ([]Stage, error) {
	var out []Stage
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		durStr, targetStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("stage %q: want duration:target", part)
		}
		d, err := time.ParseDuration(durStr)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("stage %q: duration must be positive", part)
		}
		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", part, err)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %q: target must not be negative", part)
		}
		out = append(out, Stage{Duration: d, Target: target})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no stages in %q", s)
	}
	return out, nil
}

// TotalDuration is the sum of all stage durations.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration
	}
	return total
}

// TargetAt returns the number of users that should be running at elapsed.
// Each stage starts from the previous stage's target (zero for the first).
func TargetAt(stages []Stage, elapsed time.Duration) int {
	from := 0
	for _, s := range stages {
		if elapsed < s.Duration {
			frac := float64(elapsed) / float64(s.Duration)
			return int(math.Round(float64(from) + frac*float64(s.Target-from)))
		}
		elapsed -= s.Duration
		from = s.Target
	}
	return from
}

// PeakTarget is the largest target across stages.
func PeakTarget(stages []Stage) int {
	peak := 0
	for _, s := range stages {
		if s.Target > peak {
			peak = s.Target
		}
	}
	return peak
}
