// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TacticDef pairs a tactic key (the CamelCase directory name under
// docs/tactics) with its external identifier.
type TacticDef struct {
	// Key is the directory name and the source of the display name (e.g. "InitialAccess").
	Key string `json:"key" yaml:"key" mapstructure:"key"`

	// ID is the external identifier (e.g. "MS-T0100").
	ID string `json:"id" yaml:"id" mapstructure:"id"`
}

// DefaultTactics is the reference tactic table, in matrix order.
var DefaultTactics = []TacticDef{
	{Key: "InitialAccess", ID: "MS-T0100"},
	{Key: "Execution", ID: "MS-T0200"},
	{Key: "Persistence", ID: "MS-T0300"},
	{Key: "PrivilegeEscalation", ID: "MS-T0400"},
	{Key: "DefenseEvasion", ID: "MS-T0500"},
	{Key: "CredentialAccess", ID: "MS-T0600"},
	{Key: "Discovery", ID: "MS-T0700"},
	{Key: "LateralMovement", ID: "MS-T0800"},
	{Key: "Collection", ID: "MS-T0900"},
	{Key: "Impact", ID: "MS-T1000"},
}

// CorpusConfig locates the documentation tree inside the source repository.
type CorpusConfig struct {
	// RepoDir is the root of the git checkout holding the documentation.
	RepoDir string `json:"repo_dir" yaml:"repo_dir" mapstructure:"repo_dir"`

	// DocsDir is the documentation root, relative to RepoDir (default "docs").
	DocsDir string `json:"docs_dir" yaml:"docs_dir" mapstructure:"docs_dir"`

	// TacticsDir, TechniquesDir and MitigationsDir are relative to DocsDir.
	TacticsDir     string `json:"tactics_dir" yaml:"tactics_dir" mapstructure:"tactics_dir"`
	TechniquesDir  string `json:"techniques_dir" yaml:"techniques_dir" mapstructure:"techniques_dir"`
	MitigationsDir string `json:"mitigations_dir" yaml:"mitigations_dir" mapstructure:"mitigations_dir"`

	// BaseURL is the published site root used in external reference URLs.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Tactics is the fixed tactic table, in matrix order.
	Tactics []TacticDef `json:"tactics" yaml:"tactics" mapstructure:"tactics"`
}

// HistoryConfig holds settings for the git history provider.
type HistoryConfig struct {
	// GitBinary is the git executable (default "git").
	GitBinary string `json:"git_binary" yaml:"git_binary" mapstructure:"git_binary"`

	// Ref is the revision history is read from and whose short hash suffixes
	// the versioned output (default "HEAD").
	Ref string `json:"ref" yaml:"ref" mapstructure:"ref"`

	// AnchorFile is the repository file whose first commit dates the matrix
	// and collection (default "LICENSE").
	AnchorFile string `json:"anchor_file" yaml:"anchor_file" mapstructure:"anchor_file"`
}

// OutputConfig controls where bundles are written.
type OutputConfig struct {
	// Dir is the output directory (default "build").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Prefix starts every output file name (default "tmfk").
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

// MatrixConfig holds the fixed descriptive fields of the produced matrix,
// collection and creator identity.
type MatrixConfig struct {
	Name              string `json:"name" yaml:"name" mapstructure:"name"`
	Description       string `json:"description" yaml:"description" mapstructure:"description"`
	Version           string `json:"version" yaml:"version" mapstructure:"version"`
	AttackSpecVersion string `json:"attack_spec_version" yaml:"attack_spec_version" mapstructure:"attack_spec_version"`
	Platform          string `json:"platform" yaml:"platform" mapstructure:"platform"`

	// IdentityFile optionally points at a JSON identity object used as the
	// creator. When empty the built-in identity is used.
	IdentityFile string `json:"identity_file,omitempty" yaml:"identity_file,omitempty" mapstructure:"identity_file"`
}

// BuildConfig groups everything one pipeline run needs.
type BuildConfig struct {
	Corpus  CorpusConfig  `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	History HistoryConfig `json:"history" yaml:"history" mapstructure:"history"`
	Output  OutputConfig  `json:"output" yaml:"output" mapstructure:"output"`
	Matrix  MatrixConfig  `json:"matrix" yaml:"matrix" mapstructure:"matrix"`
}

// IndexConfig holds settings for the bundle index.
type IndexConfig struct {
	// Dir is the directory holding graph.db and exports (default "build/index").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

const matrixDescription = "The purpose of the threat matrix for Kubernetes is to conceptualize the known tactics, techniques, and procedures (TTP) that adversaries may use against Kubernetes environments. Inspired from MITRE ATT&CK, the threat matrix for Kubernetes is designed to give quick insight into a potential TTP that an adversary may be using in their attack campaign. The threat matrix for Kubernetes contains also mitigations specific to Kubernetes environments and attack techniques."

// DefaultBuildConfig returns the reference configuration for the Threat
// Matrix for Kubernetes repository checked out in the working directory.
func DefaultBuildConfig() BuildConfig {
	tactics := make([]TacticDef, len(DefaultTactics))
	copy(tactics, DefaultTactics)

	return BuildConfig{
		Corpus: CorpusConfig{
			RepoDir:        ".",
			DocsDir:        "docs",
			TacticsDir:     "tactics",
			TechniquesDir:  "techniques",
			MitigationsDir: "mitigations",
			BaseURL:        "https://microsoft.github.io/Threat-Matrix-for-Kubernetes",
			Tactics:        tactics,
		},
		History: HistoryConfig{
			GitBinary:  "git",
			Ref:        "HEAD",
			AnchorFile: "LICENSE",
		},
		Output: OutputConfig{
			Dir:    "build",
			Prefix: "tmfk",
		},
		Matrix: MatrixConfig{
			Name:              "Threat Matrix for Kubernetes",
			Description:       matrixDescription,
			Version:           "0.1",
			AttackSpecVersion: "2.1.0",
			Platform:          "Kubernetes",
		},
	}
}

// Config is the full contents of a tmfk-stix config file.
type Config struct {
	BuildConfig `yaml:",inline" mapstructure:",squash"`

	Index IndexConfig `json:"index" yaml:"index" mapstructure:"index"`
}

// DefaultConfig returns DefaultBuildConfig plus the default index location.
func DefaultConfig() Config {
	return Config{
		BuildConfig: DefaultBuildConfig(),
		Index: IndexConfig{
			Dir:        "build/index",
			MaxResults: 20,
		},
	}
}
