// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DefaultSchemaContractVersion tags records exported against the current
// canonical contract.
const DefaultSchemaContractVersion = "knowledge-canonical-contract-v1"

// LibraryConfig holds settings for the curation library store.
type LibraryConfig struct {
	// Dir is the directory holding library.db and export files.
	// Empty means <data_dir>/library.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`
}

// PipelineConfig holds the resolved settings for a pipeline run. It is
// assembled from the config file, environment and flags, then validated
// before any stage runs.
type PipelineConfig struct {
	// DataDir is the base directory (contains raw/, processed/, library/).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir" validate:"required"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// LogJSON switches the logger to the JSON encoder.
	LogJSON bool `json:"log_json" yaml:"log_json" mapstructure:"log_json"`

	// Workers bounds per-record QA parallelism.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=256"`

	// SchemaContractVersion is stamped on every ready record.
	SchemaContractVersion string `json:"schema_contract_version" yaml:"schema_contract_version" mapstructure:"schema_contract_version" validate:"required"`

	// PolicyFile is an optional gate policy override (JSON or YAML).
	PolicyFile string `json:"policy_file,omitempty" yaml:"policy_file,omitempty" mapstructure:"policy_file"`

	// RulesFile is an optional diagnostic rules document (YAML).
	RulesFile string `json:"rules_file,omitempty" yaml:"rules_file,omitempty" mapstructure:"rules_file"`

	Library LibraryConfig `json:"library" yaml:"library" mapstructure:"library"`
}
