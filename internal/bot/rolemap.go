package bot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

// RoleMap translates product roles into the role names of external
// providers. Providers without an override fall back to Default.
type RoleMap struct {
	Default   map[domain.Role]string            `yaml:"default"`
	Providers map[string]map[domain.Role]string `yaml:"providers,omitempty"`
}

func DefaultRoleMap() RoleMap {
	return RoleMap{Default: map[domain.Role]string{
		domain.RoleAdmin:   "admin",
		domain.RoleManager: "maintain",
		domain.RoleWorker:  "read",
	}}
}

func LoadRoleMap(path string) (RoleMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RoleMap{}, fmt.Errorf("failed to read role map: %w", err)
	}
	return ParseRoleMap(data)
}

func ParseRoleMap(data []byte) (RoleMap, error) {
	var m RoleMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return RoleMap{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return RoleMap{}, fmt.Errorf("invalid role map: %w", err)
	}
	return m, nil
}

func (m RoleMap) Validate() error {
	check := func(where string, roles map[domain.Role]string) error {
		for role, external := range roles {
			// Keys must be spelled exactly, lookups are by the canonical name.
			if parsed, err := domain.ParseRole(string(role)); err != nil || parsed != role {
				return fmt.Errorf("%s: unknown role %q", where, role)
			}
			if external == "" {
				return fmt.Errorf("%s: role %s maps to an empty name", where, role)
			}
		}
		return nil
	}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleManager, domain.RoleWorker} {
		if m.Default[role] == "" {
			return fmt.Errorf("default: role %s is not mapped", role)
		}
	}
	if err := check("default", m.Default); err != nil {
		return err
	}
	for provider, roles := range m.Providers {
		if err := check("providers."+provider, roles); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the external role for a member role on a provider.
func (m RoleMap) Lookup(provider string, role domain.Role) (string, bool) {
	if roles, ok := m.Providers[provider]; ok {
		if external, ok := roles[role]; ok {
			return external, true
		}
	}
	external, ok := m.Default[role]
	return external, ok
}
