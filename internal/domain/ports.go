package domain

import "context"

type DomainUpdate struct {
	Enabled *bool
	Source  *Source
}

type Datastore interface {
	WithinTransaction(ctx context.Context, fn func(tx Datastore) error) error

	FindDomainByName(ctx context.Context, name string) (*Domain, error)
	CreateDomain(ctx context.Context, value Domain) (Domain, error)
	UpdateDomain(ctx context.Context, id uint, update DomainUpdate) (Domain, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	MaxDomainPriority(ctx context.Context) (int, error)
	ResetDomainPriorities(ctx context.Context) error
	DestroyDomainNamespaces(ctx context.Context, domainID uint) error

	FindNamespaceByFullName(ctx context.Context, fqname string) (*Namespace, error)
	CreateNamespace(ctx context.Context, value Namespace) (Namespace, error)
	UpdateNamespace(ctx context.Context, id uint, displayName, description string) (Namespace, error)
	ResetDefaultNamespace(ctx context.Context) error

	FindClassByNamespaceAndName(ctx context.Context, namespaceID uint, name string) (*Class, error)
	CreateClass(ctx context.Context, value Class) (Class, error)

	FindInstanceByClassAndName(ctx context.Context, classID uint, name string) (*Instance, error)
	CreateInstance(ctx context.Context, value Instance) (Instance, error)

	FindMethodByClassAndName(ctx context.Context, classID uint, name string) (*Method, error)
	CreateMethod(ctx context.Context, value Method) (Method, error)
}

type ReferenceStore interface {
	FindRepositoryByName(ctx context.Context, name string) (*Reference, error)
	FindPlaybookByName(ctx context.Context, name string) (*Reference, error)
	FindCredentialByName(ctx context.Context, name string) (*Reference, error)
	FindVaultCredentialByName(ctx context.Context, name string) (*Reference, error)
	FindCloudCredentialByName(ctx context.Context, name string) (*Reference, error)
}

type TenantStore interface {
	FindTenantByID(ctx context.Context, id uint) (*Tenant, error)
	RootTenant(ctx context.Context) (Tenant, error)
}

// TreeSource yields an exported automate tree. Namespace paths are relative
// to the domain folder and use forward slashes.
type TreeSource interface {
	Origin() Origin
	ListDomains(ctx context.Context) ([]string, error)
	ReadDomain(ctx context.Context, domain string) (DomainAttributes, error)
	ListNamespaces(ctx context.Context, domain, parent string) ([]string, error)
	ReadNamespace(ctx context.Context, domain, path string) (NamespaceAttributes, error)
	ListClasses(ctx context.Context, domain, path string) ([]string, error)
	ReadClass(ctx context.Context, domain, path, class string) (ClassDefinition, error)
}

type Origin string

const (
	OriginFilesystem Origin = "filesystem"
	OriginArchive    Origin = "archive"
	OriginGit        Origin = "git"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginFilesystem, OriginArchive, OriginGit:
		return true
	}
	return false
}
