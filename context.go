package flow

import (
	"context"
	"log/slog"

	"github.com/swissarmyhammer/flow/script"
)

// VariableContainer provides access to a run's variables. The Run type
// satisfies it; actions reach the container through the context rather than
// holding the run itself.
type VariableContainer interface {
	GetVariable(key string) (any, bool)
	SetVariable(key string, value any)
	Variables() map[string]any
}

type contextKey string

const (
	loggerContextKey    contextKey = "logger"
	variablesContextKey contextKey = "variables"
	compilerContextKey  contextKey = "compiler"
	callStackContextKey contextKey = "call_stack"
)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey).(*slog.Logger)
	return logger, ok
}

func WithVariables(ctx context.Context, variables VariableContainer) context.Context {
	return context.WithValue(ctx, variablesContextKey, variables)
}

func GetVariablesFromContext(ctx context.Context) (VariableContainer, bool) {
	variables, ok := ctx.Value(variablesContextKey).(VariableContainer)
	return variables, ok
}

func WithCompiler(ctx context.Context, compiler script.Compiler) context.Context {
	return context.WithValue(ctx, compilerContextKey, compiler)
}

func GetCompilerFromContext(ctx context.Context) (script.Compiler, bool) {
	compiler, ok := ctx.Value(compilerContextKey).(script.Compiler)
	return compiler, ok
}

// WithCallStack records the stack of in-flight workflow names on the context.
// The executor pushes the workflow name for each run it starts; sub-workflow
// actions consult the stack to reject call cycles.
func WithCallStack(ctx context.Context, stack []string) context.Context {
	return context.WithValue(ctx, callStackContextKey, stack)
}

func CallStackFromContext(ctx context.Context) []string {
	stack, _ := ctx.Value(callStackContextKey).([]string)
	return stack
}

// OnCallStack returns true if the named workflow is already executing in the
// current call chain.
func OnCallStack(ctx context.Context, workflowName string) bool {
	for _, name := range CallStackFromContext(ctx) {
		if name == workflowName {
			return true
		}
	}
	return false
}
