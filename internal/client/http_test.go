package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"total_logs": 12,
			"success_rate": 0.75,
			"rag_passages_count": 340,
			"playwright_enabled": true,
			"confidence_distribution": {"0.8-1.0": 3, "0-0.2": 1, "0.4-0.6": 8}
		}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	s, err := c.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.TotalLogs != 12 || s.SuccessRate != 0.75 || s.RAGPassagesCount != 340 || !s.PlaywrightEnabled {
		t.Errorf("unexpected stats: %+v", s)
	}

	got := s.BucketOrder()
	want := []string{"0-0.2", "0.4-0.6", "0.8-1.0"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("BucketOrder = %v, want %v", got, want)
	}
}

func TestGetLogsLimit(t *testing.T) {
	tests := []struct {
		limit int
		query string
	}{
		{10, "limit=10"},
		{1, "limit=1"},
		{0, ""},
	}

	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != tc.query {
				t.Errorf("GetLogs(%d) query = %q, want %q", tc.limit, r.URL.RawQuery, tc.query)
			}
			w.Write([]byte(`[{"id": 7, "timestamp": "2026-03-01T09:15:00.123456", "user_input": "headache",
				"rag_confidence": 0.82, "advice_quality": "good", "processing_time": 1.4,
				"image_uploaded": false, "advice_content": "rest"}]`))
		}))

		c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
		logs, err := c.GetLogs(context.Background(), tc.limit)
		srv.Close()
		if err != nil {
			t.Fatalf("GetLogs(%d): %v", tc.limit, err)
		}
		if len(logs) != 1 || logs[0].ID != 7 || logs[0].AdviceQuality != QualityGood {
			t.Errorf("unexpected logs: %+v", logs)
		}
	}
}

func TestLogRecordTime(t *testing.T) {
	tests := []struct {
		ts   string
		ok   bool
		hour int
	}{
		{"2026-03-01T09:15:00.123456", true, 9},
		{"2026-03-01 22:00:00", true, 22},
		{"2026-03-01T09:15:00Z", true, 9},
		{"yesterday", false, 0},
		{"", false, 0},
	}

	for _, tc := range tests {
		got, ok := LogRecord{Timestamp: tc.ts}.Time()
		if ok != tc.ok {
			t.Errorf("Time(%q) ok = %v, want %v", tc.ts, ok, tc.ok)
			continue
		}
		if ok && got.Hour() != tc.hour {
			t.Errorf("Time(%q) hour = %d, want %d", tc.ts, got.Hour(), tc.hour)
		}
	}
}

func TestAuthHeader(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		check func(r *http.Request) bool
	}{
		{
			name:  "none",
			creds: Credentials{},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "" },
		},
		{
			name:  "bearer",
			creds: Credentials{Token: "secret"},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer secret" },
		},
		{
			name:  "basic",
			creds: Credentials{User: "admin", Password: "hunter2"},
			check: func(r *http.Request) bool {
				u, p, ok := r.BasicAuth()
				return ok && u == "admin" && p == "hunter2"
			},
		},
		{
			name:  "token wins over basic",
			creds: Credentials{Token: "secret", User: "admin", Password: "hunter2"},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer secret" },
		},
		{
			name:  "user without password",
			creds: Credentials{User: "admin"},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tc.check(r) {
					t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
				}
				w.Write([]byte(`{"status":"healthy","rag_loaded":true}`))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, tc.creds, time.Second)
			h, err := c.Health(context.Background())
			if err != nil {
				t.Fatalf("Health: %v", err)
			}
			if h.Status != "healthy" || !h.RAGLoaded {
				t.Errorf("unexpected health: %+v", h)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	_, err := c.GetStats(context.Background())

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if se.Code != http.StatusUnauthorized || se.Method != http.MethodGet || se.Path != "/api/stats" {
		t.Errorf("unexpected status error: %+v", se)
	}
	if !strings.Contains(se.Body, "Unauthorized") {
		t.Errorf("body = %q", se.Body)
	}
}

func TestParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	_, err := c.GetLogs(context.Background(), 10)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Path != "/api/logs?limit=10" {
		t.Errorf("path = %q", pe.Path)
	}
}

func TestNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	logs, err := c.GetLogs(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected no logs, got %v", logs)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"headache":{"otc":["ibuprofen"]}}`))
		case http.MethodPost:
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
			var posted map[string]json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if string(posted["rules"]) != `{"headache":{"otc":["ibuprofen"]}}` {
				t.Errorf("posted rules = %s", posted["rules"])
			}
			w.Write([]byte(`{"status":"ok"}`))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	doc, err := c.GetRules(context.Background())
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if err := c.SaveRules(context.Background(), doc); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}
}

func TestAdviceMultipart(t *testing.T) {
	img := filepath.Join(t.TempDir(), "rash.jpg")
	if err := os.WriteFile(img, []byte("jpegbytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/advice" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("symptom"); got != "itchy rash" {
			t.Errorf("symptom = %q", got)
		}
		var loc Location
		if err := json.Unmarshal([]byte(r.FormValue("location")), &loc); err != nil {
			t.Errorf("location: %v", err)
		}
		if loc.Lat != 35.6909 || loc.Lon != 139.7006 {
			t.Errorf("location = %+v", loc)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("image part: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "rash.jpg" || string(data) != "jpegbytes" {
			t.Errorf("image = %q %q", hdr.Filename, data)
		}

		w.Write([]byte(`{"advice":"keep it dry","otc":["hydrocortisone"],"rag_confidence":0.45,
			"processing_time":2.1,"needs_crawling":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, Credentials{}, time.Second)
	resp, err := c.Advice(context.Background(), AdviceRequest{
		Symptom:   "itchy rash",
		ImagePath: img,
		Location:  &Location{Lat: 35.6909, Lon: 139.7006},
	})
	if err != nil {
		t.Fatalf("Advice: %v", err)
	}
	if resp.Advice != "keep it dry" || !resp.NeedsCrawling || len(resp.OTC) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAdviceMissingImage(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", Credentials{}, time.Second)
	_, err := c.Advice(context.Background(), AdviceRequest{
		Symptom:   "cough",
		ImagePath: filepath.Join(t.TempDir(), "missing.png"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/ws/logs", false},
		{"https://hos.example.jp/", "wss://hos.example.jp/ws/logs", false},
		{"https://hos.example.jp/admin", "wss://hos.example.jp/admin/ws/logs", false},
		{"http://localhost:8000?x=1", "ws://localhost:8000/ws/logs", false},
		{"ftp://hos.example.jp", "", true},
		{"http://", "", true},
	}

	for _, tc := range tests {
		got, err := WebSocketURL(tc.base)
		if tc.wantErr {
			if err == nil {
				t.Errorf("WebSocketURL(%q) expected error, got %q", tc.base, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("WebSocketURL(%q): %v", tc.base, err)
			continue
		}
		if got != tc.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
