// Package category holds the per-category attribute expectations enforced by
// the access layer before writes reach the attribute store.
package category

import (
	"fmt"
	"sort"
	"sync"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/google/cel-go/cel"
)

// Expectation declares one attribute a category expects
type Expectation struct {
	Key        string
	Kind       entities.ValueKind
	Constraint string // CEL over `value`; empty for none
}

// Profile lists the attributes expected for a category
type Profile struct {
	Category     string
	Expectations []Expectation
}

type rule struct {
	Expectation
	program cel.Program
}

// Registry maps categories to compiled profiles
type Registry struct {
	engine *CELEngine
	mu     sync.RWMutex
	rules  map[string]map[string]*rule
}

// NewRegistry creates a registry and registers profiles
func NewRegistry(engine *CELEngine, profiles ...Profile) (*Registry, error) {
	r := &Registry{
		engine: engine,
		rules:  make(map[string]map[string]*rule),
	}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry creates a registry with the built-in profiles
func NewDefaultRegistry() (*Registry, error) {
	engine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewRegistry(engine, DefaultProfiles()...)
}

// Register compiles and adds a profile, replacing any profile for the same category
func (r *Registry) Register(p Profile) error {
	if p.Category == "" {
		return fmt.Errorf("profile category must not be empty")
	}

	rules := make(map[string]*rule, len(p.Expectations))
	for _, exp := range p.Expectations {
		if err := entities.ValidateAttributeKey(exp.Key); err != nil {
			return fmt.Errorf("profile %s: %w", p.Category, err)
		}
		if !exp.Kind.Valid() {
			return fmt.Errorf("profile %s: unknown kind %q for %s", p.Category, exp.Kind, exp.Key)
		}
		if _, dup := rules[exp.Key]; dup {
			return fmt.Errorf("profile %s: duplicate key %s", p.Category, exp.Key)
		}

		ru := &rule{Expectation: exp}
		if exp.Constraint != "" {
			program, err := r.engine.Compile(exp.Constraint)
			if err != nil {
				return fmt.Errorf("profile %s: constraint for %s: %w", p.Category, exp.Key, err)
			}
			ru.program = program
		}
		rules[exp.Key] = ru
	}

	r.mu.Lock()
	r.rules[p.Category] = rules
	r.mu.Unlock()
	return nil
}

// Check validates one attribute write against the category's profile.
// Unknown categories and unexpected keys pass.
func (r *Registry) Check(category, key string, value entities.TypedValue) error {
	r.mu.RLock()
	ru, ok := r.rules[category][key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	if value.Kind() != ru.Kind {
		return entities.NewValidationError(key, "category %s expects %s, got %s", category, ru.Kind, value.Kind())
	}
	if ru.program == nil {
		return nil
	}

	pass, err := Run(ru.program, key, value)
	if err != nil {
		return &entities.ValidationError{
			Field:  key,
			Reason: fmt.Sprintf("constraint %q could not be evaluated", ru.Constraint),
			Err:    err,
		}
	}
	if !pass {
		return entities.NewValidationError(key, "%s violates constraint %q", value.Text(), ru.Constraint)
	}
	return nil
}

// ExpectedKeys returns the keys expected for category in lexical order
func (r *Registry) ExpectedKeys(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.rules[category]))
	for k := range r.rules[category] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Categories returns the registered categories in lexical order
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rules))
	for c := range r.rules {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
