package entities

import (
	"sort"
	"time"
)

// Project represents a tracked initiative anchored to an account address
type Project struct {
	ID              int64
	Name            string
	Token           string
	Category        string
	ContractAddress string // references Account.Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the fixed columns of a project
func (p *Project) Validate() error {
	name, err := NormalizeName("name", p.Name)
	if err != nil {
		return err
	}
	p.Name = name
	if p.Token == "" {
		return NewValidationError("token", "must not be empty")
	}
	if p.Category == "" {
		return NewValidationError("category", "must not be empty")
	}
	address, err := NormalizeAddress(p.ContractAddress)
	if err != nil {
		return err
	}
	p.ContractAddress = address
	return nil
}

// ProjectUpdate lists the fixed columns to change; nil fields are left as they are.
type ProjectUpdate struct {
	Name            *string
	Token           *string
	Category        *string
	ContractAddress *string
}

// IsEmpty reports whether the update changes nothing
func (u *ProjectUpdate) IsEmpty() bool {
	return u.Name == nil && u.Token == nil && u.Category == nil && u.ContractAddress == nil
}

// Apply validates the update and writes it onto p
func (u *ProjectUpdate) Apply(p *Project) error {
	next := *p
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Token != nil {
		next.Token = *u.Token
	}
	if u.Category != nil {
		next.Category = *u.Category
	}
	if u.ContractAddress != nil {
		next.ContractAddress = *u.ContractAddress
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}

// ProjectView is a project joined with its full attribute set
type ProjectView struct {
	Project    Project
	Attributes *AttributeSet
}

// Clone returns a deep copy safe to hand out from a cache
func (v *ProjectView) Clone() *ProjectView {
	if v == nil {
		return nil
	}
	return &ProjectView{Project: v.Project, Attributes: v.Attributes.Clone()}
}

// MissingKeys returns the expected keys that have neither a valid nor a corrupt value
func (v *ProjectView) MissingKeys(expected []string) []string {
	var missing []string
	for _, key := range expected {
		if _, ok := v.Attributes.Values[key]; ok {
			continue
		}
		if _, ok := v.Attributes.Corrupt[key]; ok {
			continue
		}
		missing = append(missing, key)
	}
	sort.Strings(missing)
	return missing
}
