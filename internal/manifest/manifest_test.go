package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolve_NameFallsBackToHumanizedDirectory(t *testing.T) {
	dir := t.TempDir()
	plugin := filepath.Join(dir, "sentence-splitter")
	require.NoError(t, os.MkdirAll(plugin, 0o755))

	m, err := Resolve(plugin, "", nil)
	require.NoError(t, err)
	require.Equal(t, "Sentence Splitter", m.Name)
	require.Equal(t, "0.0.0", m.Version)
}

func TestResolve_BuildManifestOverridesOnDiskWhenNonEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, onDiskManifestName), "name: base\nversion: \"1.0.0\"\ndescription: base desc\n")
	writeFile(t, filepath.Join(dir, buildManifestName), "[plugin]\nname = \"override\"\nversion = \"\"\n")

	m, err := Resolve(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, "override", m.Name)
	require.Equal(t, "1.0.0", m.Version, "empty override field must not clobber the on-disk value")
	require.Equal(t, "base desc", m.Description)
}

func TestResolve_VersionBoundsExcludedFromBuildOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, onDiskManifestName), "name: base\nmin_host_version: \"1.0.0\"\n")
	writeFile(t, filepath.Join(dir, buildManifestName), "[plugin]\nmin_host_version = \"9.9.9\"\n")

	m, err := Resolve(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", m.MinHostVersion, "build manifest bounds must never override on-disk bounds")
}

func TestResolve_VersionBoundsInferredFromRequirement(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, buildManifestName), "[plugin]\nname = \"inferred\"\nrequires = [\"fluxrag>=1.2.0,<2.0.0\"]\n")

	m, err := Resolve(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, "1.2.0", m.MinHostVersion)
	require.Equal(t, "2.0.0", m.MaxHostVersion)
}

func TestResolve_InvalidYAMLFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, onDiskManifestName), "name: [unterminated\n")

	_, err := Resolve(dir, "", nil)
	require.Error(t, err)
}

func TestResolve_DistMetadataOnlyAppliesToDefaultFields(t *testing.T) {
	dir := t.TempDir()
	cacheRoot := filepath.Dir(dir)
	writeFile(t, filepath.Join(dir, onDiskManifestName), "name: explicit\nauthor_name: Explicit Author\n")

	lookup := func(pluginDir, pluginID string) (DistMetadata, bool) {
		return DistMetadata{Name: "from-dist", Author: "Dist Author", Version: "2.3.4"}, true
	}

	m, err := Resolve(dir, cacheRoot, lookup)
	require.NoError(t, err)
	require.Equal(t, "explicit", m.Name)
	require.Equal(t, "Explicit Author", m.AuthorName)
	require.Equal(t, "2.3.4", m.Version, "version was still at default, dist metadata should fill it")
}
