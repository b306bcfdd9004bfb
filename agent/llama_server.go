package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// GenerationRequest is one generation call against the shared backend.
// Variables is the caller's snapshot for the workflow tools; it is bound to
// the tool server only while this request holds the generation mutex, so a
// generation never observes another caller's variables.
type GenerationRequest struct {
	Prompt    string
	MaxTokens int
	Variables map[string]any
}

// GenerationResult is the outcome of one generation call. Truncated is set
// when generation stopped at the token limit rather than organically.
type GenerationResult struct {
	Text      string
	Truncated bool
	Metadata  map[string]any
}

// Generator is the transport to a loaded model. The production
// implementation speaks HTTP to a local model server; tests inject fakes.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	Close() error
}

// GeneratorFactory builds the Generator during backend initialization.
type GeneratorFactory func(ctx context.Context, config LlamaConfig) (Generator, error)

// LlamaServer is the process-wide shared backend handle: the loaded model
// transport plus the tool server. At most one exists per process.
type LlamaServer struct {
	config     LlamaConfig
	generator  Generator
	tools      *ToolServer
	genMutex   sync.Mutex
	sessionSeq atomic.Int64
}

var (
	llamaMutex       sync.Mutex
	llamaShared      *LlamaServer
	llamaInitErr     error
	llamaInitialized bool
	llamaFactory     GeneratorFactory = newHTTPGenerator
)

// SharedLlamaServer returns the process-wide backend handle, initializing it
// on the first call. Concurrent first callers serialize on the guard mutex
// and all observe the same memoized result; a failed initialization is
// reported to every caller and never retried automatically.
func SharedLlamaServer(ctx context.Context, config LlamaConfig) (*LlamaServer, error) {
	llamaMutex.Lock()
	defer llamaMutex.Unlock()
	if llamaInitialized {
		return llamaShared, llamaInitErr
	}
	llamaShared, llamaInitErr = initializeBackend(ctx, config, llamaFactory)
	llamaInitialized = true
	return llamaShared, llamaInitErr
}

// InitializeLlamaServer eagerly initializes the shared backend. A duplicate
// initialization attempt fails loudly rather than silently replacing the
// loaded model.
func InitializeLlamaServer(ctx context.Context, config LlamaConfig) (*LlamaServer, error) {
	llamaMutex.Lock()
	defer llamaMutex.Unlock()
	if llamaInitialized {
		return nil, fmt.Errorf("llama backend already initialized")
	}
	llamaShared, llamaInitErr = initializeBackend(ctx, config, llamaFactory)
	llamaInitialized = true
	return llamaShared, llamaInitErr
}

func initializeBackend(ctx context.Context, config LlamaConfig, factory GeneratorFactory) (*LlamaServer, error) {
	generator, err := factory(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("llama backend initialization failed: %w", err)
	}
	tools := NewToolServer()
	if config.MCPPort > 0 {
		if err := tools.Start(config.MCPPort); err != nil {
			generator.Close()
			return nil, fmt.Errorf("llama backend tool server failed: %w", err)
		}
	}
	return &LlamaServer{
		config:    config,
		generator: generator,
		tools:     tools,
	}, nil
}

// setGeneratorFactory replaces the generator factory. Test hook.
func setGeneratorFactory(factory GeneratorFactory) {
	llamaMutex.Lock()
	defer llamaMutex.Unlock()
	llamaFactory = factory
}

// resetLlamaServer tears down the shared handle. Test hook.
func resetLlamaServer() {
	llamaMutex.Lock()
	defer llamaMutex.Unlock()
	if llamaShared != nil {
		llamaShared.generator.Close()
		llamaShared.tools.Stop()
	}
	llamaShared = nil
	llamaInitErr = nil
	llamaInitialized = false
	llamaFactory = newHTTPGenerator
}

// Tools returns the backend's tool server.
func (s *LlamaServer) Tools() *ToolServer {
	return s.tools
}

// generate runs one generation against the shared backend. Generations are
// mutually exclusive: concurrent generations against one loaded model cause
// initialization conflicts and out-of-memory failures, so callers queue on
// the generation mutex. The wait on the in-flight call is cancellable; on
// timeout the caller proceeds immediately and context cancellation aborts
// the transport call.
func (s *LlamaServer) generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	s.genMutex.Lock()
	defer s.genMutex.Unlock()

	// Bind under the mutex: the tool server is shared across callers, and
	// the snapshot must stay this request's until generation finishes.
	s.tools.BindVariables(req.Variables)

	type outcome struct {
		result *GenerationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.generator.Generate(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}
