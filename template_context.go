package flow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/swissarmyhammer/flow/agent"
	"github.com/swissarmyhammer/flow/script"
	"gopkg.in/yaml.v3"
)

// AgentConfigVariable is the runtime variable that overrides the agent
// configuration for a run.
const AgentConfigVariable = "_agent_config"

// ProjectConfig is the project-level configuration file consumed through
// the TemplateContext.
type ProjectConfig struct {
	Agent     any            `json:"agent,omitempty" yaml:"agent,omitempty"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// LoadProjectConfig loads a project configuration from a YAML file.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	var config ProjectConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project config: %w", err)
	}
	return &config, nil
}

// TemplateContextOptions configures a TemplateContext.
type TemplateContextOptions struct {
	Project  *ProjectConfig
	Env      func(string) string
	Compiler script.Compiler
	Defaults map[string]any
}

// TemplateContext resolves values through an explicit precedence chain
// (highest wins): runtime workflow variable, project configuration value,
// process environment variable, built-in default. It also renders the
// ${...} and $(...) expressions used by prompt and shell actions.
type TemplateContext struct {
	project  *ProjectConfig
	env      func(string) string
	compiler script.Compiler
	defaults map[string]any
}

// NewTemplateContext returns a TemplateContext configured with the given
// options.
func NewTemplateContext(opts TemplateContextOptions) *TemplateContext {
	if opts.Env == nil {
		opts.Env = os.Getenv
	}
	if opts.Compiler == nil {
		opts.Compiler = script.NewRisorScriptingEngine(script.DefaultGlobals())
	}
	if opts.Project == nil {
		opts.Project = &ProjectConfig{}
	}
	return &TemplateContext{
		project:  opts.Project,
		env:      opts.Env,
		compiler: opts.Compiler,
		defaults: opts.Defaults,
	}
}

// Compiler returns the script compiler used for rendering.
func (t *TemplateContext) Compiler() script.Compiler {
	return t.compiler
}

// Resolve walks the ordered source chain for the given key. This is the one
// place precedence is decided; callers never implement their own fallbacks.
func (t *TemplateContext) Resolve(key string, vars map[string]any) (any, bool) {
	if value, ok := vars[key]; ok {
		return value, true
	}
	if value, ok := t.project.Variables[key]; ok {
		return value, true
	}
	if value := t.env(envKey(key)); value != "" {
		return value, true
	}
	if value, ok := t.defaults[key]; ok {
		return value, true
	}
	return nil, false
}

// envKey maps a variable name to its environment override name.
func envKey(key string) string {
	return "FLOW_VAR_" + strings.ToUpper(key)
}

// Render substitutes ${...} expressions in the template against the given
// variables, exposed to expressions as the "state" global.
func (t *TemplateContext) Render(ctx context.Context, template string, vars map[string]any) (string, error) {
	compiled, err := script.NewTemplate(t.compiler, template)
	if err != nil {
		return "", err
	}
	return compiled.Eval(ctx, map[string]any{"state": vars})
}

// EvaluateValue evaluates a parameter value. A string of the form "$(...)"
// evaluates to the expression's native value; a string containing ${...}
// is rendered as a template; anything else passes through unchanged.
func (t *TemplateContext) EvaluateValue(ctx context.Context, value any, vars map[string]any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if strings.HasPrefix(s, "$(") && strings.HasSuffix(s, ")") {
		expr := s[2 : len(s)-1]
		compiled, err := t.compiler.Compile(ctx, expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile script expression %q: %w", expr, err)
		}
		result, err := compiled.Evaluate(ctx, map[string]any{"state": vars})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate script expression %q: %w", expr, err)
		}
		return result.Value(), nil
	}
	return t.Render(ctx, s, vars)
}

// EvaluateParameters renders every string parameter value, recursing into
// nested maps.
func (t *TemplateContext) EvaluateParameters(ctx context.Context, params map[string]any, vars map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	evaluated := make(map[string]any, len(params))
	for key, value := range params {
		switch v := value.(type) {
		case map[string]any:
			nested, err := t.EvaluateParameters(ctx, v, vars)
			if err != nil {
				return nil, err
			}
			evaluated[key] = nested
		default:
			result, err := t.EvaluateValue(ctx, value, vars)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}
			evaluated[key] = result
		}
	}
	return evaluated, nil
}

// GetAgentConfig resolves the agent configuration for a run: the runtime
// _agent_config variable wins over the project config's agent key, which
// wins over the built-in default.
func (t *TemplateContext) GetAgentConfig(vars map[string]any) (agent.Config, error) {
	if value, ok := vars[AgentConfigVariable]; ok {
		config, err := agent.ParseConfig(value)
		if err != nil {
			return agent.Config{}, NewWorkflowError(ErrorTypeConfiguration, err.Error())
		}
		return config, nil
	}
	if t.project.Agent != nil {
		config, err := agent.ParseConfig(t.project.Agent)
		if err != nil {
			return agent.Config{}, NewWorkflowError(ErrorTypeConfiguration, err.Error())
		}
		return config, nil
	}
	return agent.DefaultConfig(), nil
}
