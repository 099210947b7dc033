package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// LoadFromPath loads a registry.json from a local filesystem path.
func LoadFromPath(path string) ([]RegistrySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	var sets []RegistrySet
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("parsing registry JSON: %w", err)
	}

	return sets, nil
}

// LoadFromURL loads a registry.json from a remote URL.
func LoadFromURL(ctx context.Context, url string) ([]RegistrySet, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching registry: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var sets []RegistrySet
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("parsing registry JSON: %w", err)
	}

	return sets, nil
}

// FindSet searches for a bundle set by name and version in a list of
// registry sets. If version is empty, returns the first set with the
// matching name.
func FindSet(sets []RegistrySet, name, version string) (*RegistrySet, error) {
	for i := range sets {
		if sets[i].Name == name {
			if version == "" || sets[i].Version == version {
				return &sets[i], nil
			}
		}
	}

	if version != "" {
		return nil, fmt.Errorf("bundle set %q version %q not found in registry", name, version)
	}
	return nil, fmt.Errorf("bundle set %q not found in registry", name)
}
