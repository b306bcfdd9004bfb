package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variables consumed by the Claude backend.
const (
	// EnvClaudePath overrides the agent binary path.
	EnvClaudePath = "FLOW_CLAUDE_PATH"

	// EnvSystemPrompt names the system prompt source file. When set, the
	// rendered system prompt is concatenated ahead of the user prompt.
	EnvSystemPrompt = "FLOW_SYSTEM_PROMPT"

	// EnvSystemPromptDebug enables system prompt injection logging.
	EnvSystemPromptDebug = "FLOW_SYSTEM_PROMPT_DEBUG"
)

// contextVariableClaudePath is the workflow variable consulted first when
// resolving the agent binary path.
const contextVariableClaudePath = "_claude_path"

var defaultClaudeArgs = []string{"--print", "--output-format", "json"}

// ClaudeExecutor dispatches prompts to a CLI agent subprocess. Exactly one
// subprocess is spawned per call: the combined prompt is written to its
// stdin and stdout is read as the response.
type ClaudeExecutor struct {
	config       ClaudeConfig
	systemPrompt *systemPromptCache
}

// NewClaudeExecutor returns an Executor backed by the CLI agent binary.
func NewClaudeExecutor(config ClaudeConfig) *ClaudeExecutor {
	return &ClaudeExecutor{
		config:       config,
		systemPrompt: newSystemPromptCache(),
	}
}

// resolveBinaryPath resolves the agent binary: workflow variable, then
// configuration, then environment, then the bare command name.
func (e *ClaudeExecutor) resolveBinaryPath(ec ExecutionContext) string {
	if path, ok := ec.StringVariable(contextVariableClaudePath); ok && path != "" {
		return path
	}
	if e.config.BinaryPath != "" {
		return e.config.BinaryPath
	}
	if path := os.Getenv(EnvClaudePath); path != "" {
		return path
	}
	return "claude"
}

// ExecutePrompt spawns the agent subprocess, writes the combined prompt to
// its stdin, and parses stdout as the response.
func (e *ClaudeExecutor) ExecutePrompt(ctx context.Context, prompt string, ec ExecutionContext) (*Response, error) {
	if ec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ec.Timeout)
		defer cancel()
	}

	// The system prompt is concatenated with the user prompt rather than
	// passed as a CLI flag; flag-based injection caused the agent to be
	// invoked twice.
	combined, err := e.combinePrompt(prompt)
	if err != nil {
		return nil, err
	}

	args := e.config.Args
	if args == nil {
		args = defaultClaudeArgs
	}

	cmd := exec.CommandContext(ctx, e.resolveBinaryPath(ec), args...)
	cmd.Stdin = strings.NewReader(combined)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("agent subprocess failed: %s", detail)
	}

	return parseClaudeOutput(stdout.Bytes())
}

func (e *ClaudeExecutor) combinePrompt(prompt string) (string, error) {
	sourcePath := os.Getenv(EnvSystemPrompt)
	if sourcePath == "" {
		return prompt, nil
	}
	systemPrompt, err := e.systemPrompt.load(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to load system prompt: %w", err)
	}
	if os.Getenv(EnvSystemPromptDebug) != "" {
		fmt.Fprintf(os.Stderr, "system prompt injection: %d bytes from %s\n", len(systemPrompt), sourcePath)
	}
	if systemPrompt == "" {
		return prompt, nil
	}
	return systemPrompt + "\n\n" + prompt, nil
}

// parseClaudeOutput parses the agent's JSON output envelope, falling back to
// raw text for agents configured for plain output.
func parseClaudeOutput(output []byte) (*Response, error) {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return nil, fmt.Errorf("agent produced no output")
	}

	if strings.HasPrefix(text, "{") {
		var envelope map[string]any
		if err := json.Unmarshal([]byte(text), &envelope); err != nil {
			return nil, fmt.Errorf("unparsable agent output: %w", err)
		}
		content := ""
		for _, key := range []string{"result", "content", "text"} {
			if value, ok := envelope[key].(string); ok {
				content = value
				break
			}
		}
		if content == "" {
			return nil, fmt.Errorf("agent output envelope has no result content")
		}
		metadata := make(map[string]any)
		for k, v := range envelope {
			switch k {
			case "result", "content", "text":
			default:
				metadata[k] = v
			}
		}
		responseType := ResponseTypeSuccess
		if isError, ok := envelope["is_error"].(bool); ok && isError {
			responseType = ResponseTypeError
		}
		return &Response{Content: content, Metadata: metadata, Type: responseType}, nil
	}

	return &Response{Content: text, Type: ResponseTypeSuccess}, nil
}
