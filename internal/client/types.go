// Package client provides HTTP and WebSocket clients for the HOS advice
// API. Types mirror the server's JSON without depending on any server code.
package client

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// NotificationType identifies a message pushed on the /ws/logs channel.
type NotificationType string

const (
	NotifyCrawlCompleted NotificationType = "crawling_completed"
	NotifyCrawlError     NotificationType = "crawling_error"
)

// KeepAlive is the literal text frame sent to keep the channel open. The
// server answers with Pong, which is not JSON.
const (
	KeepAlive = "ping"
	Pong      = "pong"
)

// Notification is the envelope for channel messages. Fields not used by
// a given type are left empty.
type Notification struct {
	Type    NotificationType `json:"type"`
	Symptom string           `json:"symptom,omitempty"`
	Error   string           `json:"error,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
}

// Confidence distribution buckets, in display order.
var ConfidenceBuckets = []string{"0-0.2", "0.2-0.4", "0.4-0.6", "0.6-0.8", "0.8-1.0"}

// Stats is the aggregate returned by /api/stats.
type Stats struct {
	TotalLogs              int            `json:"total_logs"`
	SuccessRate            float64        `json:"success_rate"`
	RAGPassagesCount       int            `json:"rag_passages_count"`
	PlaywrightEnabled      bool           `json:"playwright_enabled"`
	ConfidenceDistribution map[string]int `json:"confidence_distribution"`
}

// BucketOrder returns the distribution keys with the known buckets first
// in ascending order, followed by any unknown keys sorted by name.
func (s *Stats) BucketOrder() []string {
	seen := make(map[string]bool, len(ConfidenceBuckets))
	out := make([]string, 0, len(s.ConfidenceDistribution))
	for _, b := range ConfidenceBuckets {
		if _, ok := s.ConfidenceDistribution[b]; ok {
			out = append(out, b)
		}
		seen[b] = true
	}
	var extra []string
	for k := range s.ConfidenceDistribution {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Advice quality grades recorded by the server.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
)

// LogRecord is one entry of /api/logs, most recent first.
type LogRecord struct {
	ID             int     `json:"id"`
	Timestamp      string  `json:"timestamp"`
	UserInput      string  `json:"user_input"`
	RAGConfidence  float64 `json:"rag_confidence"`
	AdviceQuality  string  `json:"advice_quality"`
	ProcessingTime float64 `json:"processing_time"`
	ImageUploaded  bool    `json:"image_uploaded"`
	AdviceContent  string  `json:"advice_content"`
}

// timestampLayouts covers the ISO forms the server emits, with and
// without zone and fractional seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// Time parses Timestamp. Timestamps without a zone are read as local time.
func (r LogRecord) Time() (time.Time, bool) {
	ts := strings.TrimSpace(r.Timestamp)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Location is a coordinate pair sent with an advice request.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AdviceRequest is the multipart body of POST /api/advice.
type AdviceRequest struct {
	Symptom   string
	ImagePath string    // optional
	Location  *Location // optional
}

// Place is a nearby hospital or pharmacy.
type Place struct {
	Name     string   `json:"name"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
}

// AdviceResponse is returned by POST /api/advice.
type AdviceResponse struct {
	Advice           string   `json:"advice"`
	OTC              []string `json:"otc"`
	References       []string `json:"references"`
	RAGConfidence    float64  `json:"rag_confidence"`
	ProcessingTime   float64  `json:"processing_time"`
	IsDefaultAdvice  bool     `json:"is_default_advice"`
	NeedsCrawling    bool     `json:"needs_crawling"`
	NearbyHospitals  []Place  `json:"nearby_hospitals"`
	NearbyPharmacies []Place  `json:"nearby_pharmacies"`
}

// Health is returned by /api/health.
type Health struct {
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
	RAGLoaded         bool   `json:"rag_loaded"`
	PlaywrightEnabled bool   `json:"playwright_enabled"`
}
