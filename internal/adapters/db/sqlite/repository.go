package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Repository implements the datastore, reference and tenant ports. A
// Repository returned inside WithinTransaction is bound to that transaction.
type Repository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithinTransaction(ctx context.Context, fn func(tx domain.Datastore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// find loads the first row matching query into dest and reports whether one
// was found.
func (r *Repository) find(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	res := r.db.WithContext(ctx).Where(query, args...).Limit(1).Find(dest)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) FindDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	var m DomainModel
	ok, err := r.find(ctx, &m, "name = ?", name)
	if err != nil || !ok {
		return nil, err
	}
	d := toDomain(m)
	return &d, nil
}

func (r *Repository) CreateDomain(ctx context.Context, value domain.Domain) (domain.Domain, error) {
	m := DomainModel{
		Name:        value.Name,
		Description: value.Description,
		DisplayName: value.DisplayName,
		TenantID:    value.TenantID,
		Priority:    value.Priority,
		Source:      string(defaultSource(value.Source)),
		Enabled:     value.Enabled,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Domain{}, err
	}
	return toDomain(m), nil
}

func (r *Repository) UpdateDomain(ctx context.Context, id uint, update domain.DomainUpdate) (domain.Domain, error) {
	attrs := map[string]any{}
	if update.Enabled != nil {
		attrs["enabled"] = *update.Enabled
	}
	if update.Source != nil {
		attrs["source"] = string(*update.Source)
	}
	if len(attrs) > 0 {
		if err := r.db.WithContext(ctx).Model(&DomainModel{}).Where("id = ?", id).Updates(attrs).Error; err != nil {
			return domain.Domain{}, err
		}
	}

	var m DomainModel
	ok, err := r.find(ctx, &m, "id = ?", id)
	if err != nil {
		return domain.Domain{}, err
	}
	if !ok {
		return domain.Domain{}, fmt.Errorf("domain %d: %w", id, domain.ErrNotFound)
	}
	return toDomain(m), nil
}

func (r *Repository) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	rows := make([]DomainModel, 0)
	if err := r.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Domain, 0, len(rows))
	for _, m := range rows {
		result = append(result, toDomain(m))
	}
	return result, nil
}

func (r *Repository) MaxDomainPriority(ctx context.Context) (int, error) {
	var highest int
	err := r.db.WithContext(ctx).Model(&DomainModel{}).Select("COALESCE(MAX(priority), 0)").Scan(&highest).Error
	return highest, err
}

// ResetDomainPriorities renumbers domains in their current order: the root
// domain gets its fixed priority, the others 1..n.
func (r *Repository) ResetDomainPriorities(ctx context.Context) error {
	domains, err := r.ListDomains(ctx)
	if err != nil {
		return err
	}
	next := domain.RootDomainPriority + 1
	for _, d := range domains {
		priority := next
		if domain.IsRootDomain(d.Name) {
			priority = domain.RootDomainPriority
		} else {
			next++
		}
		if priority == d.Priority {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&DomainModel{}).Where("id = ?", d.ID).Update("priority", priority).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) DestroyDomainNamespaces(ctx context.Context, domainID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteNamespaces(tx, tx.Model(&NamespaceModel{}).Where("domain_id = ?", domainID))
	})
}

// deleteNamespaces removes the namespaces matched by scope together with
// everything they contain. Children go first.
func deleteNamespaces(tx *gorm.DB, scope *gorm.DB) error {
	var nsIDs []uint
	if err := scope.Pluck("id", &nsIDs).Error; err != nil {
		return err
	}
	if len(nsIDs) == 0 {
		return nil
	}
	var classIDs []uint
	if err := tx.Model(&ClassModel{}).Where("namespace_id IN ?", nsIDs).Pluck("id", &classIDs).Error; err != nil {
		return err
	}
	if len(classIDs) > 0 {
		if err := tx.Where("class_id IN ?", classIDs).Delete(&InstanceModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("class_id IN ?", classIDs).Delete(&MethodModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", classIDs).Delete(&ClassModel{}).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", nsIDs).Delete(&NamespaceModel{}).Error
}

func (r *Repository) FindNamespaceByFullName(ctx context.Context, fqname string) (*domain.Namespace, error) {
	var m NamespaceModel
	ok, err := r.find(ctx, &m, "fqname = ?", strings.Trim(fqname, "/"))
	if err != nil || !ok {
		return nil, err
	}
	ns := toNamespace(m)
	return &ns, nil
}

func (r *Repository) CreateNamespace(ctx context.Context, value domain.Namespace) (domain.Namespace, error) {
	m := NamespaceModel{
		ParentID:    value.ParentID,
		FQName:      strings.Trim(value.FQName, "/"),
		Name:        value.Name,
		DisplayName: value.DisplayName,
		Description: value.Description,
	}
	if value.DomainID != 0 {
		m.DomainID = &value.DomainID
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Namespace{}, err
	}
	return toNamespace(m), nil
}

func (r *Repository) UpdateNamespace(ctx context.Context, id uint, displayName, description string) (domain.Namespace, error) {
	err := r.db.WithContext(ctx).Model(&NamespaceModel{}).Where("id = ?", id).
		Updates(map[string]any{"display_name": displayName, "description": description}).Error
	if err != nil {
		return domain.Namespace{}, err
	}
	var m NamespaceModel
	ok, err := r.find(ctx, &m, "id = ?", id)
	if err != nil {
		return domain.Namespace{}, err
	}
	if !ok {
		return domain.Namespace{}, fmt.Errorf("namespace %d: %w", id, domain.ErrNotFound)
	}
	return toNamespace(m), nil
}

// ResetDefaultNamespace drops the "$" namespace tree and recreates it empty.
func (r *Repository) ResetDefaultNamespace(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Model(&NamespaceModel{}).
			Where("fqname = ? OR fqname LIKE ?", domain.DefaultNamespace, domain.DefaultNamespace+"/%")
		if err := deleteNamespaces(tx, scope); err != nil {
			return err
		}
		return tx.Create(&NamespaceModel{
			FQName:      domain.DefaultNamespace,
			Name:        domain.DefaultNamespace,
			DisplayName: "Default namespace",
		}).Error
	})
}

func (r *Repository) FindClassByNamespaceAndName(ctx context.Context, namespaceID uint, name string) (*domain.Class, error) {
	var m ClassModel
	ok, err := r.find(ctx, &m, "namespace_id = ? AND name = ?", namespaceID, name)
	if err != nil || !ok {
		return nil, err
	}
	c := toClass(m)
	return &c, nil
}

func (r *Repository) CreateClass(ctx context.Context, value domain.Class) (domain.Class, error) {
	m := ClassModel{
		NamespaceID: value.NamespaceID,
		Name:        value.Name,
		DisplayName: value.DisplayName,
		Description: value.Description,
		Type:        value.Type,
		Inherits:    value.Inherits,
		Visibility:  value.Visibility,
		Schema:      value.Schema,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Class{}, err
	}
	return toClass(m), nil
}

func (r *Repository) FindInstanceByClassAndName(ctx context.Context, classID uint, name string) (*domain.Instance, error) {
	var m InstanceModel
	ok, err := r.find(ctx, &m, "class_id = ? AND name = ?", classID, name)
	if err != nil || !ok {
		return nil, err
	}
	i := toInstance(m)
	return &i, nil
}

func (r *Repository) CreateInstance(ctx context.Context, value domain.Instance) (domain.Instance, error) {
	m := InstanceModel{
		ClassID:     value.ClassID,
		Name:        value.Name,
		DisplayName: value.DisplayName,
		Description: value.Description,
		FieldValues: value.Values,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Instance{}, err
	}
	return toInstance(m), nil
}

func (r *Repository) FindMethodByClassAndName(ctx context.Context, classID uint, name string) (*domain.Method, error) {
	var m MethodModel
	ok, err := r.find(ctx, &m, "class_id = ? AND name = ?", classID, name)
	if err != nil || !ok {
		return nil, err
	}
	method := toMethod(m)
	return &method, nil
}

func (r *Repository) CreateMethod(ctx context.Context, value domain.Method) (domain.Method, error) {
	m := MethodModel{
		ClassID:     value.ClassID,
		Name:        value.Name,
		DisplayName: value.DisplayName,
		Description: value.Description,
		Location:    value.Location,
		Language:    value.Language,
		Scope:       value.Scope,
		Data:        value.Data,
		Options:     value.Options,
		Inputs:      value.Inputs,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Method{}, err
	}
	return toMethod(m), nil
}

func (r *Repository) FindTenantByID(ctx context.Context, id uint) (*domain.Tenant, error) {
	var m TenantModel
	ok, err := r.find(ctx, &m, "id = ?", id)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Tenant{ID: m.ID, Name: m.Name, ParentID: m.ParentID}, nil
}

func (r *Repository) RootTenant(ctx context.Context) (domain.Tenant, error) {
	var m TenantModel
	res := r.db.WithContext(ctx).Where("parent_id IS NULL").Order("id ASC").Limit(1).Find(&m)
	if res.Error != nil {
		return domain.Tenant{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Tenant{}, fmt.Errorf("root tenant: %w", domain.ErrNotFound)
	}
	return domain.Tenant{ID: m.ID, Name: m.Name}, nil
}

func (r *Repository) FindRepositoryByName(ctx context.Context, name string) (*domain.Reference, error) {
	var m RepositoryModel
	ok, err := r.find(ctx, &m, "name = ?", name)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Reference{ID: m.ID, Kind: domain.ReferenceRepository, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

func (r *Repository) FindPlaybookByName(ctx context.Context, name string) (*domain.Reference, error) {
	var m PlaybookModel
	ok, err := r.find(ctx, &m, "name = ?", name)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Reference{ID: m.ID, Kind: domain.ReferencePlaybook, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

func (r *Repository) FindCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return r.findCredential(ctx, domain.ReferenceCredential, name)
}

func (r *Repository) FindVaultCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return r.findCredential(ctx, domain.ReferenceVaultCredential, name)
}

func (r *Repository) FindCloudCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return r.findCredential(ctx, domain.ReferenceCloudCredential, name)
}

func (r *Repository) findCredential(ctx context.Context, kind domain.ReferenceKind, name string) (*domain.Reference, error) {
	var m CredentialModel
	ok, err := r.find(ctx, &m, "kind = ? AND name = ?", credentialKind(kind), name)
	if err != nil || !ok {
		return nil, err
	}
	return &domain.Reference{ID: m.ID, Kind: kind, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

func (r *Repository) CreateReference(ctx context.Context, value domain.Reference) (domain.Reference, error) {
	if strings.TrimSpace(value.Name) == "" {
		return domain.Reference{}, errors.New("reference name is required")
	}
	db := r.db.WithContext(ctx)
	switch value.Kind {
	case domain.ReferenceRepository:
		m := RepositoryModel{Name: value.Name}
		if err := db.Create(&m).Error; err != nil {
			return domain.Reference{}, err
		}
		return domain.Reference{ID: m.ID, Kind: value.Kind, Name: m.Name, CreatedAt: m.CreatedAt}, nil
	case domain.ReferencePlaybook:
		m := PlaybookModel{Name: value.Name}
		if err := db.Create(&m).Error; err != nil {
			return domain.Reference{}, err
		}
		return domain.Reference{ID: m.ID, Kind: value.Kind, Name: m.Name, CreatedAt: m.CreatedAt}, nil
	case domain.ReferenceCredential, domain.ReferenceVaultCredential, domain.ReferenceCloudCredential:
		m := CredentialModel{Kind: credentialKind(value.Kind), Name: value.Name}
		if err := db.Create(&m).Error; err != nil {
			return domain.Reference{}, err
		}
		return domain.Reference{ID: m.ID, Kind: value.Kind, Name: m.Name, CreatedAt: m.CreatedAt}, nil
	}
	return domain.Reference{}, fmt.Errorf("unknown reference kind %q", value.Kind)
}

func (r *Repository) ListReferences(ctx context.Context, kind domain.ReferenceKind) ([]domain.Reference, error) {
	db := r.db.WithContext(ctx)
	result := make([]domain.Reference, 0)
	switch kind {
	case domain.ReferenceRepository:
		rows := make([]RepositoryModel, 0)
		if err := db.Order("name ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, m := range rows {
			result = append(result, domain.Reference{ID: m.ID, Kind: kind, Name: m.Name, CreatedAt: m.CreatedAt})
		}
	case domain.ReferencePlaybook:
		rows := make([]PlaybookModel, 0)
		if err := db.Order("name ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, m := range rows {
			result = append(result, domain.Reference{ID: m.ID, Kind: kind, Name: m.Name, CreatedAt: m.CreatedAt})
		}
	case domain.ReferenceCredential, domain.ReferenceVaultCredential, domain.ReferenceCloudCredential:
		rows := make([]CredentialModel, 0)
		if err := db.Where("kind = ?", credentialKind(kind)).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, m := range rows {
			result = append(result, domain.Reference{ID: m.ID, Kind: kind, Name: m.Name, CreatedAt: m.CreatedAt})
		}
	default:
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}
	return result, nil
}

func credentialKind(kind domain.ReferenceKind) string {
	switch kind {
	case domain.ReferenceVaultCredential:
		return credentialVault
	case domain.ReferenceCloudCredential:
		return credentialCloud
	default:
		return credentialMachine
	}
}

func defaultSource(s domain.Source) domain.Source {
	if s == "" {
		return domain.SourceUser
	}
	return s
}
