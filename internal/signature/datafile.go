// Package signature holds the pattern tables and pinned numeric data the
// detectors need but spec.md leaves to a "versioned data file": CoT
// elicitation phrases, JA3/JA3S client-family lookup tables, the 12 topic
// centroids, and the 8 extraction-archetype embedding centroids
// (spec.md §9, Open Question a). A mismatched data-file version must fail
// startup rather than silently degrade detection quality.
package signature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/glasswally/glasswally/internal/config"
)

// DataFile is the versioned, on-disk pinning of detector constants.
type DataFile struct {
	Version            string      `yaml:"version"`
	CoTPhrases         []string    `yaml:"cot_phrases"`
	BrowserJA3Families []string    `yaml:"browser_ja3_families"`
	ScriptedJA3SFamilies []string  `yaml:"scripted_ja3s_families"`
	CompoundPreambleLexicon [][2]string `yaml:"compound_preamble_lexicon"`
	TopicCentroids     [][]float32 `yaml:"topic_centroids"`
	ArchetypeCentroids [][]float32 `yaml:"archetype_centroids"`
}

// Builtin returns the in-binary default data file, used when no external
// data file is configured (e.g. in tests and single-binary deployments).
// Its contents are grounded on spec.md §4.3's named phrases/lexicon and
// are pinned at DataFileVersion.
func Builtin() *DataFile {
	return &DataFile{
		Version:                 config.DataFileVersion,
		CoTPhrases:              defaultCoTPhrases,
		BrowserJA3Families:      defaultBrowserJA3Families,
		ScriptedJA3SFamilies:    defaultScriptedJA3SFamilies,
		CompoundPreambleLexicon: defaultCompoundPreambleLexicon,
		TopicCentroids:          defaultTopicCentroids(),
		ArchetypeCentroids:      defaultArchetypeCentroids(),
	}
}

// Load reads a data file from disk and verifies its version, or returns
// the builtin table when path is empty.
func Load(path string) (*DataFile, error) {
	if path == "" {
		return Builtin(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signature: read data file: %w", err)
	}
	var df DataFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("signature: parse data file: %w", err)
	}
	if df.Version != config.DataFileVersion {
		return nil, fmt.Errorf("signature: data file version %q does not match binary version %q",
			df.Version, config.DataFileVersion)
	}
	return &df, nil
}
