package fakeapi

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/hos-care/console/internal/client"
)

type demoSymptom struct {
	text       string
	confidence float64 // centre of the confidence spread
	crawlFails bool
}

var demoSymptoms = []demoSymptom{
	{text: "sore throat and mild fever since yesterday", confidence: 0.85},
	{text: "itchy red rash on both forearms after hiking", confidence: 0.55},
	{text: "headache behind the eyes, worse in the afternoon", confidence: 0.75},
	{text: "persistent dry cough at night", confidence: 0.65},
	{text: "upset stomach and bloating after meals", confidence: 0.45},
	{text: "sprained ankle, swelling but can walk", confidence: 0.9},
	{text: "unusual tingling in fingertips", confidence: 0.15, crawlFails: true},
	{text: "hay fever symptoms, sneezing and watery eyes", confidence: 0.8},
}

// Generator feeds a Server with plausible traffic: a steady stream of
// advice logs and, for low-confidence symptoms, a crawl that completes or
// fails a few ticks later.
type Generator struct {
	server   *Server
	rng      *rand.Rand
	interval time.Duration

	pending []pendingCrawl
}

type pendingCrawl struct {
	symptom demoSymptom
	dueTick int
}

// NewGenerator creates a generator ticking at interval. A zero interval
// means two seconds.
func NewGenerator(server *Server, rng *rand.Rand, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Generator{server: server, rng: rng, interval: interval}
}

// Seed adds n historical records spread over the past day.
func (g *Generator) Seed(n int, now time.Time) {
	for i := n; i > 0; i-- {
		at := now.Add(-time.Duration(g.rng.Int64N(int64(24 * time.Hour))))
		r := g.record(g.pick())
		r.Timestamp = at.Format("2006-01-02T15:04:05.000000")
		g.server.AddLog(r)
	}
}

// Run ticks until ctx ends.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.Step(tick)
		}
	}
}

// Step advances one tick: it logs a new request and settles any crawl
// that has come due.
func (g *Generator) Step(tick int) {
	s := g.pick()
	g.server.AddLog(g.record(s))
	if s.confidence < 0.6 {
		g.pending = append(g.pending, pendingCrawl{symptom: s, dueTick: tick + 2 + g.rng.IntN(3)})
	}

	kept := g.pending[:0]
	for _, p := range g.pending {
		if p.dueTick > tick {
			kept = append(kept, p)
			continue
		}
		if p.symptom.crawlFails {
			g.server.CrawlFailed(p.symptom.text, "no sources found")
		} else {
			g.server.CrawlCompleted(p.symptom.text)
		}
	}
	g.pending = kept
}

func (g *Generator) pick() demoSymptom {
	return demoSymptoms[g.rng.IntN(len(demoSymptoms))]
}

func (g *Generator) record(s demoSymptom) client.LogRecord {
	c := s.confidence + (g.rng.Float64()-0.5)*0.2
	c = min(max(c, 0), 1)
	return client.LogRecord{
		UserInput:      s.text,
		RAGConfidence:  c,
		AdviceQuality:  qualityFor(c),
		ProcessingTime: 0.8 + g.rng.Float64()*2.5,
		ImageUploaded:  g.rng.IntN(5) == 0,
		AdviceContent:  "Rest, fluids, and see a clinician if symptoms persist.",
	}
}

func qualityFor(c float64) string {
	switch {
	case c >= 0.8:
		return client.QualityExcellent
	case c >= 0.6:
		return client.QualityGood
	case c >= 0.4:
		return client.QualityFair
	default:
		return client.QualityPoor
	}
}
