package sqlite

import (
	"time"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

type TenantModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	ParentID  *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TenantModel) TableName() string { return "tenants" }

type DomainModel struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null;uniqueIndex"`
	Description string
	DisplayName string
	TenantID    uint   `gorm:"not null"`
	Priority    int    `gorm:"not null;default:0"`
	Source      string `gorm:"not null;default:'user'"`
	Enabled     bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DomainModel) TableName() string { return "domains" }

type NamespaceModel struct {
	ID          uint `gorm:"primaryKey"`
	DomainID    *uint
	ParentID    *uint
	FQName      string `gorm:"column:fqname;not null;uniqueIndex"`
	Name        string `gorm:"not null"`
	DisplayName string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NamespaceModel) TableName() string { return "namespaces" }

type ClassModel struct {
	ID          uint   `gorm:"primaryKey"`
	NamespaceID uint   `gorm:"not null;index:idx_classes_namespace_name,unique"`
	Name        string `gorm:"not null;index:idx_classes_namespace_name,unique"`
	DisplayName string
	Description string
	Type        string
	Inherits    string
	Visibility  string
	Schema      []domain.ClassField `gorm:"column:schema_fields;serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ClassModel) TableName() string { return "classes" }

type InstanceModel struct {
	ID          uint   `gorm:"primaryKey"`
	ClassID     uint   `gorm:"not null;index:idx_instances_class_name,unique"`
	Name        string `gorm:"not null;index:idx_instances_class_name,unique"`
	DisplayName string
	Description string
	FieldValues []domain.InstanceValue `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (InstanceModel) TableName() string { return "instances" }

type MethodModel struct {
	ID          uint   `gorm:"primaryKey"`
	ClassID     uint   `gorm:"not null;index:idx_methods_class_name,unique"`
	Name        string `gorm:"not null;index:idx_methods_class_name,unique"`
	DisplayName string
	Description string
	Location    string
	Language    string
	Scope       string
	Data        string
	Options     map[string]any       `gorm:"serializer:json"`
	Inputs      []domain.MethodInput `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (MethodModel) TableName() string { return "methods" }

type RepositoryModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

func (RepositoryModel) TableName() string { return "repositories" }

type PlaybookModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;index"`
	CreatedAt time.Time
}

func (PlaybookModel) TableName() string { return "playbooks" }

type CredentialModel struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index:idx_credentials_kind_name,unique"`
	Name      string `gorm:"not null;index:idx_credentials_kind_name,unique"`
	CreatedAt time.Time
}

func (CredentialModel) TableName() string { return "credentials" }

const (
	credentialMachine = "machine"
	credentialVault   = "vault"
	credentialCloud   = "cloud"
)

func toDomain(m DomainModel) domain.Domain {
	return domain.Domain{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		DisplayName: m.DisplayName,
		TenantID:    m.TenantID,
		Priority:    m.Priority,
		Source:      domain.Source(m.Source),
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toNamespace(m NamespaceModel) domain.Namespace {
	ns := domain.Namespace{
		ID:          m.ID,
		ParentID:    m.ParentID,
		FQName:      m.FQName,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.DomainID != nil {
		ns.DomainID = *m.DomainID
	}
	return ns
}

func toClass(m ClassModel) domain.Class {
	return domain.Class{
		ID:          m.ID,
		NamespaceID: m.NamespaceID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Type:        m.Type,
		Inherits:    m.Inherits,
		Visibility:  m.Visibility,
		Schema:      m.Schema,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toInstance(m InstanceModel) domain.Instance {
	return domain.Instance{
		ID:          m.ID,
		ClassID:     m.ClassID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Values:      m.FieldValues,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toMethod(m MethodModel) domain.Method {
	return domain.Method{
		ID:          m.ID,
		ClassID:     m.ClassID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Location:    m.Location,
		Language:    m.Language,
		Scope:       m.Scope,
		Data:        m.Data,
		Options:     m.Options,
		Inputs:      m.Inputs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
