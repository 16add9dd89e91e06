// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/slopped-in/internal/httputil"
)

// DefaultEndpoint is where the local model server listens by default.
const DefaultEndpoint = "http://localhost:11434"

// LocalRuntime talks to a local model server that downloads weights through
// /api/pull and serves OpenAI-compatible streaming chat completions.
type LocalRuntime struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewLocalRuntime returns a runtime for the server at endpoint. A nil client
// uses http.DefaultClient, which has no timeout; chat streams run as long
// as the model generates.
func NewLocalRuntime(endpoint string, client *http.Client, logger *zap.Logger) *LocalRuntime {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalRuntime{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		logger:   logger,
	}
}

// pullEvent is one NDJSON line from /api/pull.
type pullEvent struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// Load pulls modelID, reporting byte progress across all layers, then asks
// the server to load it into memory so the first generation starts quickly.
func (r *LocalRuntime) Load(ctx context.Context, modelID string, progress func(float64)) (Model, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	resp, err := r.post(ctx, "/api/pull", map[string]any{"model": modelID, "stream": true})
	if err != nil {
		return nil, fmt.Errorf("pulling %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	type layer struct{ completed, total int64 }
	layers := map[string]layer{}
	succeeded := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev pullEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("pulling %s: decoding progress: %w", modelID, err)
		}
		if ev.Error != "" {
			return nil, fmt.Errorf("pulling %s: %s", modelID, ev.Error)
		}
		if ev.Digest != "" && ev.Total > 0 {
			layers[ev.Digest] = layer{completed: ev.Completed, total: ev.Total}
			var done, total int64
			for _, l := range layers {
				done += l.completed
				total += l.total
			}
			progress(float64(done) / float64(total))
		}
		if ev.Status == "success" {
			succeeded = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pulling %s: %w", modelID, err)
	}
	if !succeeded {
		return nil, fmt.Errorf("pulling %s: stream ended before success", modelID)
	}
	progress(1)

	warm, err := r.post(ctx, "/api/generate", map[string]any{"model": modelID})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", modelID, err)
	}
	_, err = io.Copy(io.Discard, warm.Body)
	warm.Body.Close()
	if err != nil {
		r.logger.Warn("model warm-up interrupted", zap.String("model", modelID), zap.Error(err))
		return nil, fmt.Errorf("warming %s: %w", modelID, err)
	}

	r.logger.Info("model loaded", zap.String("model", modelID))
	return &localModel{runtime: r, id: modelID}, nil
}

// Delete removes modelID from the server. A 404 means it was not present.
func (r *LocalRuntime) Delete(ctx context.Context, modelID string) error {
	body, err := json.Marshal(map[string]string{"model": modelID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.endpoint+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.Do(r.client, req)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", modelID, err)
	}
	resp.Body.Close()
	return nil
}

// List returns the names of every model stored on the server.
func (r *LocalRuntime) List(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := httputil.Do(r.client, req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (r *LocalRuntime) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return httputil.Do(r.client, req)
}

type localModel struct {
	runtime *LocalRuntime
	id      string
}

func (m *localModel) ID() string { return m.id }

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// chatChunk is one streamed completion event.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *localModel) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	resp, err := m.runtime.post(ctx, "/v1/chat/completions", chatRequest{
		Model:       m.id,
		Messages:    req.Messages,
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

// sseStream reads "data:" lines from a server-sent event stream.
type sseStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	finished bool
	done     bool
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("model error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason != "" {
			s.finished = true
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	s.done = true
	if !s.finished {
		return "", io.ErrUnexpectedEOF
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
