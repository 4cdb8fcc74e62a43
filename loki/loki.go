// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loki ships zerolog output to a Grafana Loki server using the JSON
// push API. Lines are batched and flushed when the batch fills or on a timer.
package loki

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	contentType  = "application/json"
	pushPath     = "/loki/api/v1/push"
	maxErrMsgLen = 1024
)

type line struct {
	level zerolog.Level
	ts    time.Time
	text  string
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type pushRequest struct {
	Streams []*stream `json:"streams"`
}

// Writer is a zerolog.LevelWriter that forwards log lines to Loki
type Writer struct {
	URL       string
	BatchWait time.Duration
	BatchSize int

	labels   map[string]string
	lineChan chan *line
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts a writer pushing to lokiURL. The push path is appended when
// lokiURL does not already name it.
func New(lokiURL string, batchSize int, batchWait time.Duration) (*Writer, error) {
	u, err := url.Parse(lokiURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("loki url %q must be absolute", lokiURL)
	}
	if !strings.HasSuffix(u.Path, pushPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + pushPath
	}

	w := &Writer{
		URL:       u.String(),
		BatchSize: batchSize,
		BatchWait: batchWait,
		labels:    map[string]string{"app": "gbapi", "env": "test"},
		lineChan:  make(chan *line, 256),
	}

	if execEnv, ok := os.LookupEnv("EXECUTION_ENVIRONMENT"); ok {
		w.labels["env"] = execEnv
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// AddLabel attaches a static label to every stream. It must be called before
// the first write.
func (w *Writer) AddLabel(key, value string) {
	w.labels[key] = value
}

// Write implements io.Writer for callers that do not supply a level
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter. p is copied since zerolog
// reuses its buffers. Lines written after Close are dropped.
func (w *Writer) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return len(p), nil
	}

	w.lineChan <- &line{
		level: level,
		ts:    time.Now(),
		text:  strings.TrimRight(string(p), "\n"),
	}
	return len(p), nil
}

// Close flushes buffered lines and stops the writer
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lineChan)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *Writer) run() {
	var (
		maxWait   = time.NewTimer(w.BatchWait)
		batch     = map[zerolog.Level]*stream{}
		batchSize = 0
		lastTS    time.Time
	)
	defer w.wg.Done()

	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		if err := w.sendBatch(batch); err != nil {
			fmt.Fprintf(os.Stderr, "%v ERROR: loki %s: %v\n", time.Now(), reason, err)
		}
		batch = map[zerolog.Level]*stream{}
		batchSize = 0
	}
	defer flush("flush")

	for {
		select {
		case ll, ok := <-w.lineChan:
			if !ok {
				return
			}

			// loki rejects out of order entries within a stream
			if ll.ts.Before(lastTS) {
				ll.ts = lastTS
			}
			lastTS = ll.ts

			if batchSize+len(ll.text) > w.BatchSize {
				flush("send size batch")
				maxWait.Reset(w.BatchWait)
			}

			s, ok := batch[ll.level]
			if !ok {
				s = &stream{Stream: w.streamLabels(ll.level)}
				batch[ll.level] = s
			}
			s.Values = append(s.Values, [2]string{strconv.FormatInt(ll.ts.UnixNano(), 10), ll.text})
			batchSize += len(ll.text)

		case <-maxWait.C:
			flush("send time batch")
			maxWait.Reset(w.BatchWait)
		}
	}
}

func (w *Writer) streamLabels(level zerolog.Level) map[string]string {
	labels := make(map[string]string, len(w.labels)+1)
	for k, v := range w.labels {
		labels[k] = v
	}
	if level == zerolog.NoLevel {
		labels["level"] = "unknown"
	} else {
		labels["level"] = level.String()
	}
	return labels
}

func (w *Writer) sendBatch(batch map[zerolog.Level]*stream) error {
	req := pushRequest{Streams: make([]*stream, 0, len(batch))}
	for _, s := range batch {
		req.Streams = append(req.Streams, s)
	}

	buf, err := json.Marshal(&req)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = w.send(ctx, buf)
	return err
}

func (w *Writer) send(ctx context.Context, buf []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(buf))
	if err != nil {
		return -1, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxErrMsgLen))
		msg := ""
		if scanner.Scan() {
			msg = scanner.Text()
		}
		err = fmt.Errorf("server returned HTTP status %s (%d): %s", resp.Status, resp.StatusCode, msg)
	}
	return resp.StatusCode, err
}
