package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnlyWhenNoFilesExist(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(
		filepath.Join(dir, "nope-system.yaml"),
		filepath.Join(dir, "nope-user.yaml"),
		filepath.Join(dir, "nope-project.yaml"),
	)
	require.NoError(t, err)

	v, ok := s.Get("local_devices.scan_interval")
	require.True(t, ok)
	assert.Equal(t, 60, v)
}

func TestLoad_ProjectLayerOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(projectPath, []byte("local_devices:\n  scan_interval: 15\n"), 0o644))

	s, err := Load(
		filepath.Join(dir, "nope-system.yaml"),
		filepath.Join(dir, "nope-user.yaml"),
		projectPath,
	)
	require.NoError(t, err)

	assert.Equal(t, 15, s.GetInt("local_devices.scan_interval", -1))
	// Sibling keys in the same section must survive the merge untouched.
	assert.True(t, s.GetBool("local_devices.enable_video", false))
}

func TestLoad_LayerPrecedenceSystemUserProject(t *testing.T) {
	dir := t.TempDir()
	systemPath := filepath.Join(dir, "system.yaml")
	userPath := filepath.Join(dir, "user.yaml")
	projectPath := filepath.Join(dir, "project.yaml")

	require.NoError(t, os.WriteFile(systemPath, []byte("system:\n  log_level: WARN\n"), 0o644))
	require.NoError(t, os.WriteFile(userPath, []byte("system:\n  log_level: DEBUG\n"), 0o644))

	s, err := Load(systemPath, userPath, projectPath)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", s.GetString("system.log_level", ""))
}

func TestLoad_ParseErrorAbortsOnlyThatLayer(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "user.yaml")
	projectPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(userPath, []byte("system:\n  log_level: DEBUG\n"), 0o644))
	require.NoError(t, os.WriteFile(projectPath, []byte("not: [valid: yaml"), 0o644))

	s, err := Load(filepath.Join(dir, "no-system.yaml"), userPath, projectPath)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", s.GetString("system.log_level", ""))
}

func TestApplyEnv_CoercesTypesAndOutranksFiles(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(projectPath, []byte("local_devices:\n  scan_interval: 15\n"), 0o644))

	t.Setenv("RTASPI_LOCAL_SCAN_INTERVAL", "45")
	t.Setenv("RTASPI_LOCAL_ENABLE_VIDEO", "false")

	s, err := Load(filepath.Join(dir, "no-system.yaml"), filepath.Join(dir, "no-user.yaml"), projectPath)
	require.NoError(t, err)

	assert.Equal(t, 45, s.GetInt("local_devices.scan_interval", -1))
	assert.False(t, s.GetBool("local_devices.enable_video", true))
}

func TestSetAndSave_WritesOnlyTheNamedLayer(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "project.yaml")

	s, err := Load(filepath.Join(dir, "no-system.yaml"), filepath.Join(dir, "no-user.yaml"), projectPath)
	require.NoError(t, err)

	require.NoError(t, s.Set(LayerProject, "streaming.rtsp.port_start", 9000))
	assert.Equal(t, 9000, s.GetInt("streaming.rtsp.port_start", -1))

	require.NoError(t, s.Save(LayerProject))
	data, err := os.ReadFile(projectPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port_start: 9000")
}

func TestSet_RejectsDefaultsAndEnvLayers(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c"))
	require.NoError(t, err)

	assert.Error(t, s.Set(LayerDefaults, "system.log_level", "DEBUG"))
	assert.Error(t, s.Set(LayerEnv, "system.log_level", "DEBUG"))
}

func TestGetStringSlice_ReturnsDiscoveryMethods(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c"))
	require.NoError(t, err)

	methods := s.GetStringSlice("network_devices.discovery_methods")
	assert.ElementsMatch(t, []string{"onvif", "upnp", "mdns"}, methods)
}
