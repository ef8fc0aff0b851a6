package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacySingleFilePatternDump(t *testing.T) {
	raw := []byte(`{"boundPatternName":"P0","patterns":{"P0":{"steps":[],"columns":[],"stepsPerBeat":4}}}`)

	doc, err := migrateLegacy(filepath.Join(t.TempDir(), "session.json"), raw)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.NotEmpty(t, doc.Pattern)

	var exported struct {
		Patterns          map[string]interface{} `json:"patterns"`
		SequencerBindings map[string]interface{} `json:"sequencerBindings"`
	}
	require.NoError(t, jsonc.Unmarshal(doc.Pattern, &exported))
	assert.Contains(t, exported.Patterns, "P0")
}

func TestMigrateLegacyConsolidatesLooseFilesAndRenames(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.json")
	modulesPath := filepath.Join(dir, "session.modules.json")
	connectionsPath := filepath.Join(dir, "session.connections.json")
	patternsPath := filepath.Join(dir, "session.patterns.json")

	require.NoError(t, os.WriteFile(sessionPath, []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(modulesPath, []byte(`{
		"seq1": {"uuid":"u1","name":"seq1","type":"sequencer","enabled":true,"parameters":{}}
	}`), 0644))
	require.NoError(t, os.WriteFile(connectionsPath, []byte(`[
		{"sourceModule":"seq1","targetModule":"masterAudioOut","connectionType":"AUDIO","active":true}
	]`), 0644))
	require.NoError(t, os.WriteFile(patternsPath, []byte(`{"patterns":{"P0":{"steps":[],"columns":[],"stepsPerBeat":4}}}`), 0644))

	raw, err := os.ReadFile(sessionPath)
	require.NoError(t, err)

	doc, err := migrateLegacy(sessionPath, raw)
	require.NoError(t, err)

	assert.Len(t, doc.Modules, 1)
	assert.Equal(t, "sequencer", doc.Modules["seq1"].TypeName)
	assert.Len(t, doc.Connections, 1)
	assert.NotEmpty(t, doc.Pattern)

	var exported struct {
		SequencerBindings map[string]struct {
			PatternName string `json:"patternName"`
		} `json:"sequencerBindings"`
	}
	require.NoError(t, jsonc.Unmarshal(doc.Pattern, &exported))
	assert.Equal(t, "P0", exported.SequencerBindings["seq1"].PatternName)

	for _, p := range []string{modulesPath, connectionsPath, patternsPath} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "expected %s to be renamed away", p)
		_, err = os.Stat(p + ".migrated")
		assert.NoError(t, err)
	}
}

func TestMigrateLegacyWithNoLooseFilesReturnsEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(sessionPath, []byte(`{}`), 0644))

	raw, err := os.ReadFile(sessionPath)
	require.NoError(t, err)

	doc, err := migrateLegacy(sessionPath, raw)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Empty(t, doc.Modules)
	assert.Empty(t, doc.Connections)
	assert.Empty(t, doc.Pattern)
}
