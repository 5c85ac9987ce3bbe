package core

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"creative-backend/pkg/api"

	"gopkg.in/yaml.v2"
)

const independenceRule = "You must evaluate INDEPENDENTLY. Do not reference other roles' outputs. " +
	"Apply the evaluation framework strictly within your defined remit."

type RoleDefinition struct {
	Id              int      `yaml:"id"`
	Name            string   `yaml:"name"`
	ShortName       string   `yaml:"short_name"`
	Remit           string   `yaml:"remit"`
	FrameworkLayers []string `yaml:"framework_layers"`
	Weight          float64  `yaml:"weight"`
	IsHardGate      bool     `yaml:"hard_gate"`
	IsAdversarial   bool     `yaml:"adversarial"`
}

// SystemPrompt is the persona sent to the evaluator service for this role.
func (r RoleDefinition) SystemPrompt() string {
	return fmt.Sprintf("You are the %s.\n\n%s\n%s", r.Name, r.Remit, independenceRule)
}

func (r RoleDefinition) HasLayer(layerId string) bool {
	return slices.Contains(r.FrameworkLayers, layerId)
}

func (r RoleDefinition) Info() api.RoleInfo {
	return api.RoleInfo{
		Id:              r.Id,
		Name:            r.Name,
		ShortName:       r.ShortName,
		Weight:          r.Weight,
		IsHardGate:      r.IsHardGate,
		IsAdversarial:   r.IsAdversarial,
		FrameworkLayers: r.FrameworkLayers,
	}
}

var ErrInvalidRegistry = errors.New("invalid role registry")

// Registry is the ordered, immutable set of roles run for every evaluation.
type Registry struct {
	roles []RoleDefinition
	index map[int]int
}

func NewRegistry(roles []RoleDefinition) (*Registry, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: no roles defined", ErrInvalidRegistry)
	}

	index := make(map[int]int, len(roles))
	adversarial := 0
	for i, role := range roles {
		if _, ok := index[role.Id]; ok {
			return nil, fmt.Errorf("%w: duplicate role id %d", ErrInvalidRegistry, role.Id)
		}
		index[role.Id] = i

		if role.Name == "" {
			return nil, fmt.Errorf("%w: role %d has no name", ErrInvalidRegistry, role.Id)
		}
		if role.Weight <= 0 {
			return nil, fmt.Errorf("%w: role '%s' has non-positive weight %v", ErrInvalidRegistry, role.Name, role.Weight)
		}
		for _, layer := range role.FrameworkLayers {
			if _, ok := LookupLayer(layer); !ok {
				return nil, fmt.Errorf("%w: role '%s' references unknown layer '%s'", ErrInvalidRegistry, role.Name, layer)
			}
		}
		if role.IsAdversarial {
			adversarial++
			if role.IsHardGate {
				return nil, fmt.Errorf("%w: adversarial role '%s' cannot be a hard gate", ErrInvalidRegistry, role.Name)
			}
		}
	}

	if adversarial > 1 {
		return nil, fmt.Errorf("%w: at most one adversarial role is allowed, found %d", ErrInvalidRegistry, adversarial)
	}

	return &Registry{roles: slices.Clone(roles), index: index}, nil
}

//go:embed roles.yaml
var defaultRolesYAML []byte

type registryFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

func parseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing role registry: %w", err)
	}
	return NewRegistry(file.Roles)
}

// DefaultRegistry returns the eight built-in evaluation roles.
func DefaultRegistry() *Registry {
	registry, err := parseRegistry(defaultRolesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded role registry is invalid: %v", err))
	}
	return registry
}

// LoadRegistry reads a registry from a YAML file, or returns the default
// registry when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading role registry %s: %w", path, err)
	}
	return parseRegistry(data)
}

func (r *Registry) Roles() []RoleDefinition {
	return slices.Clone(r.roles)
}

func (r *Registry) Len() int {
	return len(r.roles)
}

func (r *Registry) Role(id int) (RoleDefinition, bool) {
	i, ok := r.index[id]
	if !ok {
		return RoleDefinition{}, false
	}
	return r.roles[i], true
}

// Position returns the registry order of the role, or -1 if unknown.
func (r *Registry) Position(id int) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

func (r *Registry) Adversarial() (RoleDefinition, bool) {
	for _, role := range r.roles {
		if role.IsAdversarial {
			return role, true
		}
	}
	return RoleDefinition{}, false
}

func (r *Registry) Info() []api.RoleInfo {
	infos := make([]api.RoleInfo, 0, len(r.roles))
	for _, role := range r.roles {
		infos = append(infos, role.Info())
	}
	return infos
}

// ShortNames maps role ids to the short names used in search queries.
func (r *Registry) ShortNames() map[int]string {
	names := make(map[int]string, len(r.roles))
	for _, role := range r.roles {
		names[role.Id] = role.ShortName
	}
	return names
}
