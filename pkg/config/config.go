// Package config loads nimbusdb's schema and tunable settings from a YAML
// file, following the teacher's use of gopkg.in/yaml.v3 for configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ColumnType names the declared type of a column in a schema file, used by
// --load/--schema to seed an ingest buffer's column types ahead of the first
// row.
type ColumnType string

const (
	ColumnInt    ColumnType = "int"
	ColumnFloat  ColumnType = "float"
	ColumnString ColumnType = "string"
)

// TableSchema declares the expected columns of one table.
type TableSchema struct {
	Name    string                `yaml:"name"`
	Columns map[string]ColumnType `yaml:"columns"`
}

// Schema is the top-level shape of a --schema file.
type Schema struct {
	Tables []TableSchema `yaml:"tables"`
}

// Tunables are the storage-engine and query knobs that can be set in a
// config file; no CLI flag overrides them.
type Tunables struct {
	ReadaheadBytes           int64         `yaml:"readahead_bytes"`
	ResidentBudgetBytes      int64         `yaml:"resident_budget_bytes"`
	SubpartitionTargetBytes  int64         `yaml:"subpartition_target_bytes"`
	FlushInterval            time.Duration `yaml:"flush_interval"`
	WALFlushRows             int           `yaml:"wal_flush_rows"`
	DictionaryCardinalityMax int           `yaml:"dictionary_cardinality_max"`
}

// DefaultTunables mirrors values the original implementation hard-coded as
// constants (16 MiB subpartition target, dictionary cutoff, etc.).
func DefaultTunables() Tunables {
	return Tunables{
		ReadaheadBytes:           64 << 20,
		ResidentBudgetBytes:      512 << 20,
		SubpartitionTargetBytes:  16 << 20,
		FlushInterval:            time.Second,
		WALFlushRows:             10_000,
		DictionaryCardinalityMax: 1 << 16,
	}
}

// LoadSchema reads a YAML schema file from path.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	return &s, nil
}

// LoadTunables reads tunables from a YAML file. Fields absent from the file
// keep their defaults; a field the file sets explicitly, even to zero, takes
// the file's value.
func LoadTunables(path string) (Tunables, error) {
	t := DefaultTunables()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading config %s: %w", path, err)
	}
	overlay := DefaultTunables()
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return t, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return overlay, nil
}
