package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanq16/wirespeed/internal/fetch"
	"github.com/tanq16/wirespeed/internal/probe"
	"github.com/tanq16/wirespeed/internal/progress"
	"github.com/tanq16/wirespeed/internal/utils"
)

func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func rangeServer(payload []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))
}

func TestRunAllChunksComplete(t *testing.T) {
	payload := testPayload(100000)
	server := rangeServer(payload)
	defer server.Close()

	var started struct {
		url    string
		size   int64
		chunks int
	}
	result, err := Run(context.Background(), Config{
		URL:         server.URL,
		Connections: 4,
		Interval:    10 * time.Millisecond,
		StartFunc: func(url string, size int64, chunks int) {
			started.url, started.size, started.chunks = url, size, chunks
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != AllChunksCompleted {
		t.Errorf("Outcome = %v, want AllChunksCompleted", result.Outcome)
	}
	if result.Downloaded != int64(len(payload)) {
		t.Errorf("Downloaded = %d, want %d", result.Downloaded, len(payload))
	}
	if started.chunks != 4 || started.size != int64(len(payload)) {
		t.Errorf("StartFunc saw size %d chunks %d, want %d and 4", started.size, started.chunks, len(payload))
	}
	if result.ID == "" {
		t.Error("result has no run ID")
	}

	// Per-chunk totals of completed chunks must account for every
	// counted byte.
	var sum int64
	for _, state := range result.Chunks {
		if state.Status != fetch.StatusCompleted {
			t.Errorf("chunk %d status = %v, want completed", state.Chunk.ID, state.Status)
		}
		sum += state.Downloaded
	}
	if sum != result.Downloaded {
		t.Errorf("chunk byte sum %d != counter %d", sum, result.Downloaded)
	}
}

func TestRunEmitsSamples(t *testing.T) {
	payload := testPayload(200000)
	var release sync.WaitGroup
	release.Add(1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" {
			// Hold the transfer open long enough for ticks to fire.
			release.Wait()
		}
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer server.Close()

	var mu sync.Mutex
	var samples []progress.Sample
	time.AfterFunc(100*time.Millisecond, release.Done)
	result, err := Run(context.Background(), Config{
		URL:         server.URL,
		Connections: 2,
		Interval:    10 * time.Millisecond,
		SampleFunc: func(s progress.Sample) {
			mu.Lock()
			samples = append(samples, s)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != AllChunksCompleted {
		t.Errorf("Outcome = %v, want AllChunksCompleted", result.Outcome)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(samples) == 0 {
		t.Fatal("no samples emitted")
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Time.Before(samples[i-1].Time) {
			t.Errorf("samples out of order at %d", i)
		}
	}
}

func TestRunDegradedSingleStream(t *testing.T) {
	payload := testPayload(5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Accept-Ranges; Range headers are ignored.
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if r.Method == "HEAD" {
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	result, err := Run(context.Background(), Config{
		URL:         server.URL,
		Connections: 4,
		Interval:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 in degraded mode", len(result.Chunks))
	}
	if result.Outcome != AllChunksCompleted || result.Downloaded != int64(len(payload)) {
		t.Errorf("outcome %v downloaded %d, want complete %d", result.Outcome, result.Downloaded, len(payload))
	}
}

func TestRunChunkFailureIsIsolated(t *testing.T) {
	payload := testPayload(1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "HEAD" {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			return
		}
		start, end := parseRange(t, r.Header.Get("Range"))
		if start == 750 {
			// Promise 250 bytes, deliver 100, then drop the
			// connection.
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
			w.Header().Set("Content-Length", "250")
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[750:850])
			return
		}
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer server.Close()

	result, err := Run(context.Background(), Config{
		URL:         server.URL,
		Connections: 4,
		Interval:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != CompletedWithFailures {
		t.Errorf("Outcome = %v, want CompletedWithFailures", result.Outcome)
	}
	if result.Downloaded != 850 {
		t.Errorf("Downloaded = %d, want 850", result.Downloaded)
	}
	var failed, completed int
	for _, state := range result.Chunks {
		switch state.Status {
		case fetch.StatusFailed:
			failed++
		case fetch.StatusCompleted:
			completed++
		}
	}
	if failed != 1 || completed != 3 {
		t.Errorf("failed=%d completed=%d, want 1 and 3", failed, completed)
	}
}

func TestRunDurationCap(t *testing.T) {
	payload := testPayload(1000)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "HEAD" {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			return
		}
		start, end := parseRange(t, r.Header.Get("Range"))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start : start+10])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	result, err := Run(context.Background(), Config{
		URL:         server.URL,
		Connections: 2,
		Interval:    10 * time.Millisecond,
		Duration:    200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != Interrupted {
		t.Errorf("Outcome = %v, want Interrupted", result.Outcome)
	}
	if result.Downloaded == 0 {
		t.Error("partial bytes should be retained after interruption")
	}
}

func TestRunProbeFailureAbortsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Run(context.Background(), Config{URL: server.URL, Connections: 4})
	if !errors.Is(err, probe.ErrUnknownLength) {
		t.Errorf("Run error = %v, want ErrUnknownLength", err)
	}
}

func TestRunBatch(t *testing.T) {
	payload := testPayload(2000)
	server := rangeServer(payload)
	defer server.Close()

	listPath := filepath.Join(t.TempDir(), "targets.yaml")
	list := fmt.Sprintf("- link: %s\n- link: %s\n  connections: 2\n", server.URL, server.URL)
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		t.Fatal(err)
	}
	targets, err := utils.ReadTargetList(listPath)
	if err != nil {
		t.Fatalf("ReadTargetList: %v", err)
	}

	results, err := RunBatch(context.Background(), targets, Config{
		Connections: 4,
		Interval:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, result := range results {
		if result == nil {
			t.Fatalf("result %d is nil", i)
		}
		if result.Outcome != AllChunksCompleted {
			t.Errorf("result %d outcome = %v", i, result.Outcome)
		}
	}
	if len(results[1].Chunks) != 2 {
		t.Errorf("per-target connections ignored: got %d chunks, want 2", len(results[1].Chunks))
	}
}

func TestRunBatchSkipsBadTarget(t *testing.T) {
	payload := testPayload(2000)
	server := rangeServer(payload)
	defer server.Close()

	targets := []utils.TargetEntry{
		{URL: "http://127.0.0.1:1/nothing"},
		{URL: server.URL},
	}
	results, err := RunBatch(context.Background(), targets, Config{
		Connections: 2,
		Interval:    10 * time.Millisecond,
	})
	if err == nil {
		t.Error("RunBatch should surface the probe failure")
	}
	if results[0] != nil {
		t.Error("failed target should have nil result")
	}
	if results[1] == nil || results[1].Outcome != AllChunksCompleted {
		t.Error("good target after a bad one should still be measured")
	}
}

func TestDetectOutcome(t *testing.T) {
	completed := fetch.State{Status: fetch.StatusCompleted}
	failed := fetch.State{Status: fetch.StatusFailed}

	ctx := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		states []fetch.State
		want   Outcome
	}{
		{"all completed", ctx, []fetch.State{completed, completed}, AllChunksCompleted},
		{"one failed", ctx, []fetch.State{completed, failed}, CompletedWithFailures},
		{"cancelled with stragglers", cancelled, []fetch.State{completed, failed}, Interrupted},
		{"cancelled after finish", cancelled, []fetch.State{completed, completed}, AllChunksCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectOutcome(tt.ctx, tt.states); got != tt.want {
				t.Errorf("DetectOutcome = %v, want %v", got, tt.want)
			}
		})
	}
}

func parseRange(t *testing.T, header string) (int64, int64) {
	t.Helper()
	header = strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(header, "-", 2)
	if len(parts) != 2 {
		t.Fatalf("bad range header %q", header)
	}
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end, _ := strconv.ParseInt(parts[1], 10, 64)
	return start, end
}
