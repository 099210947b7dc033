package registry

// RegistryBundle represents a single dataset bundle entry in a registry set.
type RegistryBundle struct {
	Name        string `json:"name"`
	GitURL      string `json:"git_url"`
	GitCommitID string `json:"git_commit_id,omitempty"` // empty = HEAD
	Path        string `json:"path,omitempty"`          // empty = repo root
}

// RegistrySet represents a named bundle collection defined in a
// registry.json file.
type RegistrySet struct {
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Description string           `json:"description,omitempty"`
	Bundles     []RegistryBundle `json:"bundles"`
}

// cloneKey uniquely identifies a git repository at a specific commit.
type cloneKey struct {
	GitURL      string
	GitCommitID string // empty means HEAD
}
