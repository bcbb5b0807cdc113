package domain

import (
	"strings"
	"time"
)

const (
	RootDomainName     = "ManageIQ"
	RootDomainPriority = 0
	AllDomains         = "*"
	DefaultNamespace   = "$"
)

type Source string

const (
	SourceSystem     Source = "system"
	SourceUser       Source = "user"
	SourceUserLocked Source = "user_locked"
)

func (s Source) Valid() bool {
	switch s {
	case SourceSystem, SourceUser, SourceUserLocked:
		return true
	}
	return false
}

type MethodMode string

const (
	MethodModeInline   MethodMode = "inline"
	MethodModePlaybook MethodMode = "playbook"
	MethodModeOther    MethodMode = "other"
)

type Tenant struct {
	ID       uint
	Name     string
	ParentID *uint
}

type Domain struct {
	ID          uint
	Name        string
	Description string
	DisplayName string
	TenantID    uint
	Priority    int
	Source      Source
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentsLocked reports whether the domain refuses edits to its contents.
func (d Domain) ContentsLocked() bool {
	return d.Source == SourceSystem || d.Source == SourceUserLocked
}

func IsRootDomain(name string) bool {
	return strings.EqualFold(name, RootDomainName)
}

type Namespace struct {
	ID          uint
	DomainID    uint
	ParentID    *uint
	FQName      string
	Name        string
	DisplayName string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Class struct {
	ID          uint
	NamespaceID uint
	Name        string
	DisplayName string
	Description string
	Type        string
	Inherits    string
	Visibility  string
	Schema      []ClassField
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ClassField struct {
	Name         string `json:"name"`
	AeType       string `json:"aetype,omitempty"`
	Datatype     string `json:"datatype,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
	Substitute   bool   `json:"substitute,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

type Instance struct {
	ID          uint
	ClassID     uint
	Name        string
	DisplayName string
	Description string
	Values      []InstanceValue
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type InstanceValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type Method struct {
	ID          uint
	ClassID     uint
	Name        string
	DisplayName string
	Description string
	Location    string
	Language    string
	Scope       string
	Data        string
	Options     map[string]any
	Inputs      []MethodInput
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MethodInput struct {
	Name         string `json:"name"`
	Datatype     string `json:"datatype,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

type ReferenceKind string

const (
	ReferenceRepository      ReferenceKind = "repository"
	ReferencePlaybook        ReferenceKind = "playbook"
	ReferenceCredential      ReferenceKind = "credential"
	ReferenceVaultCredential ReferenceKind = "vault_credential"
	ReferenceCloudCredential ReferenceKind = "cloud_credential"
)

// Reference is a persisted external entity a playbook method can point at.
type Reference struct {
	ID        uint
	Kind      ReferenceKind
	Name      string
	CreatedAt time.Time
}

// DomainAttributes is the attribute bag of a domain definition. Nil pointers
// mean the attribute is absent.
type DomainAttributes struct {
	Name        string
	Description string
	DisplayName string
	Priority    *int
	Source      *Source
	Enabled     *bool
	TenantID    *uint
	System      *bool
}

type NamespaceAttributes struct {
	Name        string
	DisplayName string
	Description string
}

type ClassAttributes struct {
	Name        string
	DisplayName string
	Description string
	Type        string
	Inherits    string
	Visibility  string
}

type InstanceDefinition struct {
	Name        string
	DisplayName string
	Description string
	Values      []InstanceValue
}

type MethodAttributes struct {
	Name        string
	DisplayName string
	Description string
	Location    string
	Language    string
	Scope       string
	Options     map[string]any
}

type MethodDefinition struct {
	File       string
	Attributes MethodAttributes
	Inputs     []MethodInput
	Script     *string
}

type ClassDefinition struct {
	Attributes ClassAttributes
	Schema     []ClassField
	Instances  []InstanceDefinition
	Methods    []MethodDefinition
}
