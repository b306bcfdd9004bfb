package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"
)

const (
	defaultLlamaPort    = 8012
	defaultMaxTokens    = 2048
	serverReadyTimeout  = 120 * time.Second
	serverReadyInterval = 250 * time.Millisecond
)

// httpGenerator speaks the local model server's HTTP completion API. When no
// server URL is configured it launches and owns a llama-server subprocess
// for the configured model file.
type httpGenerator struct {
	baseURL string
	client  *http.Client
	proc    *exec.Cmd
}

// newHTTPGenerator is the production GeneratorFactory: connect to an already
// running server, or spawn one for the configured model and wait for it to
// become healthy.
func newHTTPGenerator(ctx context.Context, config LlamaConfig) (Generator, error) {
	g := &httpGenerator{client: &http.Client{}}

	if config.ServerURL != "" {
		g.baseURL = config.ServerURL
	} else {
		if config.ModelFile == "" {
			return nil, fmt.Errorf("llama agent requires server_url or model_file")
		}
		args := []string{"-m", config.ModelFile, "--port", strconv.Itoa(defaultLlamaPort), "--host", "127.0.0.1"}
		if config.ContextLength > 0 {
			args = append(args, "-c", strconv.Itoa(config.ContextLength))
		}
		proc := exec.Command("llama-server", args...)
		if err := proc.Start(); err != nil {
			return nil, fmt.Errorf("failed to start llama-server: %w", err)
		}
		g.proc = proc
		g.baseURL = fmt.Sprintf("http://127.0.0.1:%d", defaultLlamaPort)
	}

	if err := g.waitReady(ctx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// waitReady polls the server health endpoint until the model is loaded.
func (g *httpGenerator) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, serverReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(serverReadyInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := g.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("model server not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

type completionRequest struct {
	Prompt   string `json:"prompt"`
	NPredict int    `json:"n_predict"`
}

type completionResponse struct {
	Content      string `json:"content"`
	StoppedLimit bool   `json:"stopped_limit"`
	Model        string `json:"model,omitempty"`
	TokensUsed   int    `json:"tokens_predicted,omitempty"`
}

func (g *httpGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(completionRequest{Prompt: req.Prompt, NPredict: maxTokens})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation request failed: status %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return nil, fmt.Errorf("unparsable generation response: %w", err)
	}

	metadata := map[string]any{}
	if completion.Model != "" {
		metadata["model"] = completion.Model
	}
	if completion.TokensUsed > 0 {
		metadata["tokens"] = completion.TokensUsed
	}
	return &GenerationResult{
		Text:      completion.Content,
		Truncated: completion.StoppedLimit,
		Metadata:  metadata,
	}, nil
}

func (g *httpGenerator) Close() error {
	if g.proc != nil && g.proc.Process != nil {
		return g.proc.Process.Kill()
	}
	return nil
}
