package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const lokiBatchSize = 20

// LokiWriter buffers log lines and pushes them to Loki. Use it as a log output
// next to stderr.
type LokiWriter struct {
	url    string
	job    string
	client *http.Client
	mu     sync.Mutex
	buf    [][]string
	ticker *time.Ticker
	done   chan struct{}
}

// NewLokiWriter returns nil when baseURL is empty.
func NewLokiWriter(baseURL, job string) *LokiWriter {
	if baseURL == "" || job == "" {
		return nil
	}
	w := &LokiWriter{
		url:    strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push",
		job:    job,
		client: &http.Client{Timeout: 5 * time.Second},
		ticker: time.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

func (w *LokiWriter) Write(p []byte) (int, error) {
	full := false
	w.mu.Lock()
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.buf = append(w.buf, []string{strconv.FormatInt(time.Now().UnixNano(), 10), string(line)})
	}
	full = len(w.buf) >= lokiBatchSize
	w.mu.Unlock()
	if full {
		w.flush()
	}
	return len(p), nil
}

func (w *LokiWriter) flushLoop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.ticker.C:
			w.flush()
		}
	}
}

func (w *LokiWriter) flush() {
	w.mu.Lock()
	if len(w.buf) == 0 {
		w.mu.Unlock()
		return
	}
	values := w.buf
	w.buf = nil
	w.mu.Unlock()

	raw, _ := json.Marshal(map[string]interface{}{
		"streams": []map[string]interface{}{
			{"stream": map[string]string{"job": w.job}, "values": values},
		},
	})
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Close stops the flusher and pushes what is left.
func (w *LokiWriter) Close() error {
	w.ticker.Stop()
	close(w.done)
	w.flush()
	return nil
}
