package capability

import (
	"fmt"
	"sort"

	"github.com/BaSui01/agentpool/config"
	"go.uber.org/zap"
)

// AgentTypeDefinition is an immutable catalog entry: an agent type name, its
// category, declared capability set, and default resource profile.
type AgentTypeDefinition struct {
	TypeName            string
	Category            string
	Capabilities        map[string]struct{}
	MemorySize          int64
	MaxContexts         int
	PreferredComplexity Complexity
}

// CapabilityList returns the declared capabilities in sorted order.
func (d *AgentTypeDefinition) CapabilityList() []string {
	caps := make([]string, 0, len(d.Capabilities))
	for c := range d.Capabilities {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

// HasCapability reports whether the type declares the capability tag.
// Matching is case-sensitive and exact.
func (d *AgentTypeDefinition) HasCapability(capability string) bool {
	_, ok := d.Capabilities[capability]
	return ok
}

// TypeRegistry is the static catalog of agent types. It is built once from
// configuration and never mutated afterwards, so lookups need no locking.
type TypeRegistry struct {
	types  map[string]*AgentTypeDefinition
	names  []string
	logger *zap.Logger
}

// NewTypeRegistry builds a registry from the configured catalog. Entries are
// validated at registration time: duplicate names, empty capability sets and
// unknown complexity tiers are rejected here rather than at scoring time.
func NewTypeRegistry(catalog []config.CatalogEntry, logger *zap.Logger) (*TypeRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &TypeRegistry{
		types:  make(map[string]*AgentTypeDefinition, len(catalog)),
		logger: logger.With(zap.String("component", "type_registry")),
	}

	for i, entry := range catalog {
		if entry.TypeName == "" {
			return nil, fmt.Errorf("%w: catalog entry %d has empty type name", ErrInvalidConfiguration, i)
		}
		if _, dup := r.types[entry.TypeName]; dup {
			return nil, fmt.Errorf("%w: duplicate type name %q", ErrInvalidConfiguration, entry.TypeName)
		}
		if len(entry.Capabilities) == 0 {
			return nil, fmt.Errorf("%w: type %q declares no capabilities", ErrInvalidConfiguration, entry.TypeName)
		}
		complexity, err := ParseComplexity(entry.Resources.PreferredComplexity)
		if err != nil {
			return nil, fmt.Errorf("%w: type %q: %v", ErrInvalidConfiguration, entry.TypeName, err)
		}

		caps := make(map[string]struct{}, len(entry.Capabilities))
		for _, c := range entry.Capabilities {
			if c == "" {
				return nil, fmt.Errorf("%w: type %q declares an empty capability tag", ErrInvalidConfiguration, entry.TypeName)
			}
			caps[c] = struct{}{}
		}

		r.types[entry.TypeName] = &AgentTypeDefinition{
			TypeName:            entry.TypeName,
			Category:            entry.Category,
			Capabilities:        caps,
			MemorySize:          entry.Resources.MemorySize,
			MaxContexts:         entry.Resources.MaxContexts,
			PreferredComplexity: complexity,
		}
		r.names = append(r.names, entry.TypeName)
	}
	sort.Strings(r.names)

	r.logger.Info("type registry initialized", zap.Int("types", len(r.names)))
	return r, nil
}

// AllTypes returns all registered type names in sorted order.
func (r *TypeRegistry) AllTypes() []string {
	return append([]string(nil), r.names...)
}

// TypesByCapability returns the type names declaring the given capability tag.
// Matching is a case-sensitive exact match, scanned over the catalog.
func (r *TypeRegistry) TypesByCapability(capability string) []string {
	var result []string
	for _, name := range r.names {
		if r.types[name].HasCapability(capability) {
			result = append(result, name)
		}
	}
	return result
}

// TypesByCategory returns the type names in the given category.
func (r *TypeRegistry) TypesByCategory(category string) []string {
	var result []string
	for _, name := range r.names {
		if r.types[name].Category == category {
			result = append(result, name)
		}
	}
	return result
}

// Capabilities returns the capability set declared by the type.
func (r *TypeRegistry) Capabilities(typeName string) ([]string, error) {
	def, ok := r.types[typeName]
	if !ok {
		return nil, UnknownAgentTypeError{TypeName: typeName}
	}
	return def.CapabilityList(), nil
}

// Definition returns the full type definition.
func (r *TypeRegistry) Definition(typeName string) (*AgentTypeDefinition, error) {
	def, ok := r.types[typeName]
	if !ok {
		return nil, UnknownAgentTypeError{TypeName: typeName}
	}
	return def, nil
}
