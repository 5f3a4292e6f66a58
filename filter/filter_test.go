package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/vbox-mqtt/config"
)

func TestFilter_NoScript(t *testing.T) {
	f, err := New(config.FilterConfig{})
	require.NoError(t, err)
	assert.True(t, f.Include("anything"))

	var nilFilter *Filter
	assert.True(t, nilFilter.Include("anything"))
	assert.Equal(t, []string{"a", "b"}, nilFilter.Apply([]string{"a", "b"}))
}

func TestFilter_InlineScript(t *testing.T) {
	f, err := New(config.FilterConfig{ScriptCode: `
function include(name) {
  return !hasPrefix(name, "tmp-") && name !== "template";
}`})
	require.NoError(t, err)

	assert.Equal(t, []string{"demo", "Windows 11"}, f.Apply([]string{"demo", "tmp-build", "template", "Windows 11"}))
}

func TestFilter_ScriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.js")
	require.NoError(t, os.WriteFile(path, []byte(`function include(name) { return name === "demo"; }`), 0644))

	f, err := New(config.FilterConfig{ScriptPath: path})
	require.NoError(t, err)
	assert.True(t, f.Include("demo"))
	assert.False(t, f.Include("other"))
}

func TestFilter_FallbackToInclude(t *testing.T) {
	f, err := New(config.FilterConfig{ScriptCode: `
function include(name) {
  if (name === "boom") { throw new Error("bad"); }
  if (name === "text") { return "yes"; }
  return false;
}`})
	require.NoError(t, err)

	assert.True(t, f.Include("boom"))
	assert.True(t, f.Include("text"))
	assert.False(t, f.Include("demo"))
}

func TestFilter_InvalidScripts(t *testing.T) {
	_, err := New(config.FilterConfig{ScriptCode: `function include(name) {`})
	assert.Error(t, err)

	_, err = New(config.FilterConfig{ScriptCode: `var include = 1;`})
	assert.ErrorContains(t, err, "does not define an 'include' function")

	_, err = New(config.FilterConfig{ScriptPath: "/nonexistent/filter.js"})
	assert.ErrorContains(t, err, "failed to load filter script")
}

func TestFilter_Reload(t *testing.T) {
	f, err := New(config.FilterConfig{ScriptCode: `function include(n) { return false; }`})
	require.NoError(t, err)
	assert.False(t, f.Include("demo"))

	// a broken script keeps the previous one
	assert.Error(t, f.Reload(config.FilterConfig{ScriptCode: `syntax error (`}))
	assert.False(t, f.Include("demo"))

	require.NoError(t, f.Reload(config.FilterConfig{}))
	assert.True(t, f.Include("demo"))
}
