// Package fakeapi is an in-process stand-in for the HOS advice API. It
// serves the endpoints the console consumes, computes statistics from the
// log records it holds, and pushes crawl notifications on /ws/logs. The
// dashboard's demo mode and the end-to-end tests run against it.
package fakeapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hos-care/console/internal/client"
)

// Options configures a Server. An empty Token and User leave every route
// open.
type Options struct {
	Token    string
	User     string
	Password string

	RAGPassages       int
	PlaywrightEnabled bool
}

// Server holds the fake API state.
type Server struct {
	opts        Options
	broadcaster *Broadcaster

	mu     sync.Mutex
	logs   []client.LogRecord // oldest first
	nextID int
	rules  json.RawMessage
	fail   map[string]int // path -> status to return instead
}

func NewServer(opts Options) *Server {
	return &Server{
		opts:        opts,
		broadcaster: NewBroadcaster(),
		rules:       json.RawMessage(`{}`),
		fail:        make(map[string]int),
	}
}

// Broadcaster returns the /ws/logs fan-out.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/logs", s.handleWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.admin(s.handleStats))
	mux.HandleFunc("/api/logs", s.admin(s.handleLogs))
	mux.HandleFunc("/api/otc_rules", s.admin(s.handleRules))
}

// AddLog appends a record, assigning its ID and, when empty, a timestamp.
func (s *Server) AddLog(r client.LogRecord) client.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.Timestamp == "" {
		r.Timestamp = time.Now().Format("2006-01-02T15:04:05.000000")
	}
	s.logs = append(s.logs, r)
	return r
}

// CrawlCompleted broadcasts a completed crawl for symptom.
func (s *Server) CrawlCompleted(symptom string) {
	s.broadcaster.Broadcast(client.Notification{
		Type:    client.NotifyCrawlCompleted,
		Symptom: symptom,
		Result:  json.RawMessage(`{"success":true}`),
	})
}

// CrawlFailed broadcasts a failed crawl.
func (s *Server) CrawlFailed(symptom, msg string) {
	s.broadcaster.Broadcast(client.Notification{
		Type:    client.NotifyCrawlError,
		Symptom: symptom,
		Error:   msg,
	})
}

// FailPath makes path answer with status until cleared with status 0.
func (s *Server) FailPath(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, path)
		return
	}
	s.fail[path] = status
}

// Rules returns the stored rules document.
func (s *Server) Rules() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(json.RawMessage(nil), s.rules...)
}

// Stats computes the aggregate the way the real server does: success
// counts good and excellent advice, and confidences fall into fixed
// buckets.
func (s *Server) Stats() client.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist := make(map[string]int, len(client.ConfidenceBuckets))
	for _, b := range client.ConfidenceBuckets {
		dist[b] = 0
	}
	good := 0
	for _, r := range s.logs {
		if r.AdviceQuality == client.QualityGood || r.AdviceQuality == client.QualityExcellent {
			good++
		}
		if b, ok := bucketOf(r.RAGConfidence); ok {
			dist[b]++
		}
	}
	st := client.Stats{
		TotalLogs:              len(s.logs),
		RAGPassagesCount:       s.opts.RAGPassages,
		PlaywrightEnabled:      s.opts.PlaywrightEnabled,
		ConfidenceDistribution: dist,
	}
	if len(s.logs) > 0 {
		st.SuccessRate = float64(good) / float64(len(s.logs))
	}
	return st
}

func bucketOf(c float64) (string, bool) {
	switch {
	case c < 0 || c > 1:
		return "", false
	case c < 0.2:
		return "0-0.2", true
	case c < 0.4:
		return "0.2-0.4", true
	case c < 0.6:
		return "0.4-0.6", true
	case c < 0.8:
		return "0.6-0.8", true
	default:
		return "0.8-1.0", true
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fakeapi: ws upgrade error: %v", err)
		return
	}

	c := s.broadcaster.add(ws)
	go func() {
		defer s.broadcaster.remove(c)
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == client.KeepAlive {
				s.broadcaster.reply(c, []byte(client.Pong))
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, client.Health{
		Status:            "healthy",
		Timestamp:         time.Now().Format(time.RFC3339),
		RAGLoaded:         s.opts.RAGPassages > 0,
		PlaywrightEnabled: s.opts.PlaywrightEnabled,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Stats())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	s.mu.Lock()
	out := make([]client.LogRecord, 0, min(limit, len(s.logs)))
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	s.mu.Unlock()

	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.Rules())
	case http.MethodPost:
		var body struct {
			Rules json.RawMessage `json:"rules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Rules) == 0 {
			http.Error(w, "invalid rules", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.rules = body.Rules
		s.mu.Unlock()
		writeJSON(w, map[string]string{"status": "saved"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// admin wraps an admin route with auth and injected failures.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		status := s.fail[r.URL.Path]
		s.mu.Unlock()
		if status != 0 {
			http.Error(w, "injected failure", status)
			return
		}
		h(w, r)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.opts.Token == "" && s.opts.User == "" {
		return true
	}
	if s.opts.Token != "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.Token {
			return true
		}
	}
	if s.opts.User != "" {
		if u, p, ok := r.BasicAuth(); ok && u == s.opts.User && p == s.opts.Password {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("fakeapi: encode: %v", err)
	}
}
