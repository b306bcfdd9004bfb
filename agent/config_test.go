package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Run("config passes through", func(t *testing.T) {
		original := Config{Type: ExecutorLlamaAgent}
		parsed, err := ParseConfig(original)
		require.NoError(t, err)
		require.Equal(t, original, parsed)
	})

	t.Run("bare string selects type", func(t *testing.T) {
		parsed, err := ParseConfig("llama-agent")
		require.NoError(t, err)
		require.Equal(t, ExecutorLlamaAgent, parsed.Type)
	})

	t.Run("map decodes full config", func(t *testing.T) {
		parsed, err := ParseConfig(map[string]any{
			"type": "claude-code",
			"claude": map[string]any{
				"binary_path": "/opt/agent",
				"args":        []any{"--print"},
			},
		})
		require.NoError(t, err)
		require.Equal(t, ExecutorClaudeCode, parsed.Type)
		require.Equal(t, "/opt/agent", parsed.Claude.BinaryPath)
		require.Equal(t, []string{"--print"}, parsed.Claude.Args)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := ParseConfig("teleport")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown agent executor type")

		_, err = ParseConfig(map[string]any{"type": "teleport"})
		require.Error(t, err)
	})

	t.Run("unserializable value rejected", func(t *testing.T) {
		_, err := ParseConfig(func() {})
		require.Error(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	require.Equal(t, ExecutorClaudeCode, DefaultConfig().Type)
}

func TestForConfig(t *testing.T) {
	executor, err := ForConfig(Config{Type: ExecutorClaudeCode})
	require.NoError(t, err)
	require.IsType(t, &ClaudeExecutor{}, executor)

	executor, err = ForConfig(Config{Type: ExecutorLlamaAgent})
	require.NoError(t, err)
	require.IsType(t, &LlamaExecutor{}, executor)

	executor, err = ForConfig(Config{})
	require.NoError(t, err)
	require.IsType(t, &ClaudeExecutor{}, executor, "empty type defaults to the CLI agent")

	_, err = ForConfig(Config{Type: "teleport"})
	require.Error(t, err)
}
