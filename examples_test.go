package flow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// The shipped example workflows must stay loadable.
func TestExampleWorkflowsLoad(t *testing.T) {
	paths, err := filepath.Glob("examples/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		if filepath.Base(path) == "project.yaml" {
			continue // project config, not a workflow
		}
		t.Run(filepath.Base(path), func(t *testing.T) {
			workflow, err := LoadFile(path)
			require.NoError(t, err)
			require.NotEmpty(t, workflow.Name())
			require.NotNil(t, workflow.Initial())
		})
	}
}

// Loading the examples directory yields every workflow and skips the
// project config, so sub-workflow targets like verify-build resolve.
func TestLoadDirectorySkipsNonWorkflows(t *testing.T) {
	workflows, err := LoadDirectory("examples")
	require.NoError(t, err)

	names := make([]string, 0, len(workflows))
	for _, workflow := range workflows {
		names = append(names, workflow.Name())
	}
	require.Contains(t, names, "release")
	require.Contains(t, names, "verify-build")
	require.NotContains(t, names, "")

	registry := NewMemoryWorkflowRegistry()
	for _, workflow := range workflows {
		require.NoError(t, registry.Register(workflow))
	}
	_, ok := registry.Get("verify-build")
	require.True(t, ok)
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := LoadDirectory("does-not-exist")
	require.Error(t, err)
}

func TestExampleProjectConfigLoads(t *testing.T) {
	project, err := LoadProjectConfig(filepath.Join("examples", "project.yaml"))
	require.NoError(t, err)
	require.NotNil(t, project.Agent)
	require.Contains(t, project.Variables, "report_path")
}
