package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRegistry_DefaultsOnly(t *testing.T) {
	r, err := NewFileRegistry("")
	require.NoError(t, err)

	rendered, err := r.Resolve("学习笔记", []string{"物理", "力学"})
	require.NoError(t, err)
	assert.NotEmpty(t, rendered.System)
	assert.Contains(t, rendered.User, "Category: 学习笔记")
	assert.Contains(t, rendered.User, "物理, 力学")
	assert.NotNil(t, rendered.Schema)
}

func TestFileRegistry_UnknownCategoryFallsBack(t *testing.T) {
	r, err := NewFileRegistry("")
	require.NoError(t, err)

	rendered, err := r.Resolve("旅行计划", nil)
	require.NoError(t, err)
	// fallback profile rendered with the requested category name
	assert.Contains(t, rendered.User, "Category: 旅行计划")
}

func TestFileRegistry_FileOverridesAndAdds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
学习笔记:
  display_name: study notes
  system_prompt: custom system
  user_prompt: "custom user {category} / {tags}"
lecture:
  display_name: lecture
  system_prompt: lecture system
  user_prompt: "lecture user {category}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	rendered, err := r.Resolve("学习笔记", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "custom system", rendered.System)
	assert.Equal(t, "custom user 学习笔记 / a, b", rendered.User)
	assert.Nil(t, rendered.Schema)

	rendered, err = r.Resolve("Lecture", nil)
	require.NoError(t, err)
	assert.Equal(t, "lecture system", rendered.System)

	// defaults not named in the file survive
	rendered, err = r.Resolve("meeting", nil)
	require.NoError(t, err)
	assert.Contains(t, rendered.User, "meeting minutes")
}

func TestFileRegistry_MissingFileUsesDefaults(t *testing.T) {
	r, err := NewFileRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	rendered, err := r.Resolve("学习笔记", nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(rendered.User, "structured note"))
}

func TestFileRegistry_FailedReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("学习笔记:\n  system_prompt: first\n  user_prompt: first user\n"), 0o644))

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("学习笔记: [unterminated"), 0o644))
	require.Error(t, r.Reload())

	rendered, err := r.Resolve("学习笔记", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", rendered.System)
}

func TestFileRegistry_ReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("学习笔记:\n  system_prompt: v1\n  user_prompt: u\n"), 0o644))

	r, err := NewFileRegistry(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("学习笔记:\n  system_prompt: v2\n  user_prompt: u\n"), 0o644))
	require.NoError(t, r.Reload())

	rendered, err := r.Resolve("学习笔记", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", rendered.System)
}
