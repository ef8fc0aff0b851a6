package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/state"
)

// legacyPatternDocument is the pre-redesign shape: a single sequencer's
// bound patterns lived inline, keyed by pattern name, with no central
// PatternRuntime export and no explicit binding record (grounded on
// SessionManager.cpp's "legacy single-file sequencer snapshot" detection
// and its migration into the first sequencer it finds — spec §4.8).
type legacyPatternDocument struct {
	BoundPatternName string          `json:"boundPatternName,omitempty"`
	Patterns         json.RawMessage `json:"patterns"`
}

// migrateLegacy builds a current-format Document from a version-less
// session file plus whatever sibling loose files sit next to it. Every
// loose file actually consumed is renamed with a ".migrated" suffix
// (spec §4.8: "consolidate several legacy loose files into the session
// JSON and rename them with a .migrated suffix").
func migrateLegacy(path string, raw []byte) (Document, error) {
	doc := Document{Version: CurrentVersion, Modules: make(map[string]state.ModuleState)}

	// The primary file itself may already be the legacy single-sequencer
	// pattern dump (no "modules"/"connections" keys at all).
	var self legacyPatternDocument
	if err := jsonc.Unmarshal(raw, &self); err == nil && len(self.Patterns) > 0 {
		if err := mergeLegacyPatterns(&doc, self); err != nil {
			return Document{}, err
		}
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	consumed := make([]string, 0, 3)

	if data, ok := readLooseFile(base + ".modules.json"); ok {
		var modules map[string]state.ModuleState
		if err := jsonc.Unmarshal(data, &modules); err != nil {
			return Document{}, fmt.Errorf("parsing legacy modules file: %w", err)
		}
		for name, m := range modules {
			doc.Modules[name] = m
		}
		consumed = append(consumed, base+".modules.json")
	}

	if data, ok := readLooseFile(base + ".connections.json"); ok {
		var conns []connection.Info
		if err := jsonc.Unmarshal(data, &conns); err != nil {
			return Document{}, fmt.Errorf("parsing legacy connections file: %w", err)
		}
		doc.Connections = conns
		consumed = append(consumed, base+".connections.json")
	}

	if data, ok := readLooseFile(base + ".patterns.json"); ok {
		var legacy legacyPatternDocument
		if err := jsonc.Unmarshal(data, &legacy); err != nil {
			return Document{}, fmt.Errorf("parsing legacy patterns file: %w", err)
		}
		if err := mergeLegacyPatterns(&doc, legacy); err != nil {
			return Document{}, err
		}
		consumed = append(consumed, base+".patterns.json")
	}

	for _, p := range consumed {
		if err := os.Rename(p, p+".migrated"); err != nil {
			// best-effort: the data is already folded into doc, so a
			// rename failure doesn't block the load, only leaves the
			// loose file behind for next time.
			continue
		}
	}

	return doc, nil
}

// mergeLegacyPatterns folds a legacy pattern dump into doc.Pattern
// (internal/runtime's export shape) and, if doc already has at least one
// sequencer-typed module loaded, binds the first one (by stable name
// order) to the bound/first pattern name.
func mergeLegacyPatterns(doc *Document, legacy legacyPatternDocument) error {
	var patterns map[string]json.RawMessage
	if err := jsonc.Unmarshal(legacy.Patterns, &patterns); err != nil {
		return fmt.Errorf("parsing legacy pattern set: %w", err)
	}
	if len(patterns) == 0 {
		return nil
	}

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	boundName := legacy.BoundPatternName
	if boundName == "" {
		boundName = names[0]
	}

	runtimeDoc := struct {
		Patterns          map[string]json.RawMessage `json:"patterns"`
		Chains            map[string]json.RawMessage `json:"chains"`
		SequencerBindings map[string]struct {
			PatternName  string `json:"patternName"`
			ChainName    string `json:"chainName"`
			ChainEnabled bool   `json:"chainEnabled"`
		} `json:"sequencerBindings"`
	}{Patterns: patterns}

	if len(doc.Pattern) > 0 {
		if err := jsonc.Unmarshal(doc.Pattern, &runtimeDoc); err != nil {
			return fmt.Errorf("merging into existing pattern export: %w", err)
		}
		for name, p := range patterns {
			runtimeDoc.Patterns[name] = p
		}
	}

	sequencerName := firstSequencerName(doc.Modules)
	if sequencerName != "" {
		if runtimeDoc.SequencerBindings == nil {
			runtimeDoc.SequencerBindings = make(map[string]struct {
				PatternName  string `json:"patternName"`
				ChainName    string `json:"chainName"`
				ChainEnabled bool   `json:"chainEnabled"`
			})
		}
		entry := runtimeDoc.SequencerBindings[sequencerName]
		entry.PatternName = boundName
		runtimeDoc.SequencerBindings[sequencerName] = entry
	}

	merged, err := jsonc.Marshal(runtimeDoc)
	if err != nil {
		return fmt.Errorf("marshaling merged pattern export: %w", err)
	}
	doc.Pattern = merged
	return nil
}

// firstSequencerName returns the lowest module name (by sort order)
// whose TypeName is "sequencer", or "" if none are loaded yet — kept
// string-literal rather than importing internal/modules, which would
// pull OSC/runtime dependencies into this package for one constant.
func firstSequencerName(modules map[string]state.ModuleState) string {
	const sequencerTypeName = "sequencer"
	names := make([]string, 0, len(modules))
	for name, m := range modules {
		if m.TypeName == sequencerTypeName {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

func readLooseFile(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}
