package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DirectiveSeed is one directive declared in the seed file.
type DirectiveSeed struct {
	Tenant     string  `yaml:"tenant"`
	ScopeKind  string  `yaml:"scope_kind"`
	ScopeValue string  `yaml:"scope_value"`
	Target     string  `yaml:"target"`
	Action     string  `yaml:"action"`
	Weight     float64 `yaml:"weight"`
}

type directiveFile struct {
	Directives []DirectiveSeed `yaml:"directives"`
}

// LoadDirectiveSeeds reads directives from a YAML file of the form
//
//	directives:
//	  - tenant: acme
//	    scope_kind: query
//	    scope_value: return policy
//	    target: returns
//	    action: pin
//
// Entries without a tenant belong to defaultTenant.
func LoadDirectiveSeeds(path, defaultTenant string) ([]DirectiveSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directives file: %w", err)
	}
	var f directiveFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directives file %s: %w", path, err)
	}
	for i := range f.Directives {
		if f.Directives[i].Tenant == "" {
			f.Directives[i].Tenant = defaultTenant
		}
	}
	return f.Directives, nil
}
