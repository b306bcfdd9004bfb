package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Session is a per-conversation context established against the shared
// backend. Session creation performs tool discovery, which carries
// substantial fixed overhead; a session is therefore reused across calls
// within one executor rather than recreated per prompt.
type Session struct {
	id       string
	server   *LlamaServer
	preamble string
}

// NewSession creates a session against the backend and performs tool
// discovery once.
func (s *LlamaServer) NewSession(ctx context.Context) (*Session, error) {
	session := &Session{
		id:     fmt.Sprintf("session-%d", s.sessionSeq.Add(1)),
		server: s,
	}
	session.preamble = renderToolPreamble(s.tools.Tools())
	return session, nil
}

// ID returns the session identifier.
func (sn *Session) ID() string {
	return sn.id
}

// renderToolPreamble describes the available tools to the model. Rendered
// once at session creation and prepended to every prompt in the session.
func renderToolPreamble(tools []mcp.Tool) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return b.String()
}

// LlamaExecutor dispatches prompts to the in-process local-model backend.
// All instances share one process-wide backend handle; each instance reuses
// one session across its calls.
type LlamaExecutor struct {
	config       LlamaConfig
	sessionMutex sync.Mutex
	session      *Session
}

// NewLlamaExecutor returns an Executor backed by the shared local model.
func NewLlamaExecutor(config LlamaConfig) *LlamaExecutor {
	return &LlamaExecutor{config: config}
}

func (e *LlamaExecutor) ensureSession(ctx context.Context, server *LlamaServer) (*Session, error) {
	e.sessionMutex.Lock()
	defer e.sessionMutex.Unlock()
	if e.session != nil {
		return e.session, nil
	}
	session, err := server.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	e.session = session
	return session, nil
}

// ExecutePrompt generates a response for the prompt using the shared
// backend. The first call anywhere in the process triggers backend
// initialization; generation runs under the caller's timeout via a
// cancellable await.
func (e *LlamaExecutor) ExecutePrompt(ctx context.Context, prompt string, ec ExecutionContext) (*Response, error) {
	server, err := SharedLlamaServer(ctx, e.config)
	if err != nil {
		return nil, err
	}

	session, err := e.ensureSession(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if ec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ec.Timeout)
		defer cancel()
	}

	fullPrompt := prompt
	if session.preamble != "" {
		fullPrompt = session.preamble + "\n" + prompt
	}

	result, err := server.generate(ctx, GenerationRequest{
		Prompt:    fullPrompt,
		MaxTokens: e.config.ContextLength,
		Variables: ec.Variables,
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"session_id": session.id}
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	responseType := ResponseTypeSuccess
	if result.Truncated {
		responseType = ResponseTypePartial
	}
	return &Response{
		Content:  result.Text,
		Metadata: metadata,
		Type:     responseType,
	}, nil
}
