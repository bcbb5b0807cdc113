package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/astrozzc/manageiq-automation-engine/internal/application"

type Config struct {
	// BaseDomains are the built-in domains a system-sourced import may target.
	BaseDomains []string
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

type ImportService struct {
	store       domain.Datastore
	refs        domain.ReferenceStore
	tenants     domain.TenantStore
	baseDomains []string
	log         *slog.Logger
	tracer      trace.Tracer
	metrics     *instruments
}

type ImportOptions struct {
	Restore   bool `json:"restore"`
	Preview   bool `json:"preview"`
	Overwrite bool `json:"overwrite"`
	// ImportAs renames the domain of a single-domain import. "*" means no rename.
	ImportAs string `json:"import_as,omitempty"`
	// Namespace limits the import to one namespace path (and its children).
	Namespace string `json:"namespace,omitempty"`
	// ClassName limits the import to one class per visited namespace.
	ClassName string         `json:"class_name,omitempty"`
	Tenant    *domain.Tenant `json:"-"`
	TenantID  *uint          `json:"tenant_id,omitempty"`
	Enabled   *bool          `json:"enabled,omitempty"`
	Source    *domain.Source `json:"source,omitempty"`
	// Origin overrides the origin reported by the tree source. Only trusted
	// callers may change it.
	Origin domain.Origin `json:"origin,omitempty"`
	// Trusted skips the security policy; set it for internal callers that
	// act without a user.
	Trusted bool `json:"-"`
}

type ImportResult struct {
	RunID   string          `json:"run_id"`
	Domains []domain.Domain `json:"domains"`
	Stats   ImportStats     `json:"stats"`
}

func NewImportService(store domain.Datastore, refs domain.ReferenceStore, tenants domain.TenantStore, cfg Config) *ImportService {
	s := &ImportService{
		store:       store,
		refs:        refs,
		tenants:     tenants,
		baseDomains: cfg.BaseDomains,
		log:         cfg.Logger,
		tracer:      cfg.Tracer,
	}
	if len(s.baseDomains) == 0 {
		s.baseDomains = DefaultBaseDomains
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(tracerName)
	}
	metrics, err := newInstruments(meter)
	if err != nil {
		s.log.Warn("import metrics disabled", "error", err)
	}
	s.metrics = metrics
	return s
}

func (s *ImportService) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	list, err := s.store.ListDomains(ctx)
	if err != nil {
		return nil, storageError("import.ListDomains", err)
	}
	return list, nil
}

// Import reconciles the tree of domainName (or of every domain when it is
// domain.AllDomains) from source into the datastore. Each domain is imported
// in its own transaction.
func (s *ImportService) Import(ctx context.Context, source domain.TreeSource, domainName string, opts ImportOptions) (ImportResult, error) {
	run := &importRun{
		svc:    s,
		source: source,
		opts:   opts,
		single: domainName != domain.AllDomains,
	}
	run.stats.Reset()
	result := ImportResult{RunID: uuid.NewString()}
	run.log = s.log.With("run_id", result.RunID)

	ctx, span := s.tracer.Start(ctx, "automate.import", trace.WithAttributes(
		attribute.String("automate.domain", domainName),
		attribute.Bool("automate.preview", opts.Preview),
		attribute.Bool("automate.overwrite", opts.Overwrite),
	))
	defer span.End()

	started := time.Now()
	domains, err := run.start(ctx, domainName)
	result.Domains = domains
	result.Stats = run.stats.Report()
	s.metrics.record(ctx, result.Stats, opts.Preview, err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.log.Error("import failed", "domain", domainName, "error", err)
		return result, err
	}

	run.log.Info("import statistics", "stats", result.Stats)
	if opts.Preview {
		run.log.Warn("database has NOT been updated, run without preview to apply the above changes")
	} else {
		run.log.Info("database has been updated")
	}
	return result, nil
}

type importRun struct {
	svc    *ImportService
	source domain.TreeSource
	opts   ImportOptions
	single bool
	origin domain.Origin
	tenant domain.Tenant
	stats  ImportStats
	log    *slog.Logger
}

func (r *importRun) start(ctx context.Context, domainName string) ([]domain.Domain, error) {
	const op = "import.Start"

	if r.source == nil {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, errors.New("tree source is required"))
	}
	if strings.TrimSpace(domainName) == "" {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, errors.New("domain name is required"))
	}

	if err := r.checkOverrides(); err != nil {
		return nil, err
	}
	r.origin = cmp.Or(r.opts.Origin, r.source.Origin())
	if err := r.resolveTenant(ctx); err != nil {
		return nil, err
	}

	if r.single && r.renaming() && !r.opts.Overwrite {
		existing, err := r.svc.store.FindDomainByName(ctx, r.opts.ImportAs)
		if err != nil {
			return nil, storageError(op, err)
		}
		if existing != nil {
			r.log.Info("cannot import, a domain exists with the new domain name", "import_as", r.opts.ImportAs)
			return nil, domain.NewImportError(op, domain.KindConflict,
				fmt.Errorf("%w: new domain exists already, %s", domain.ErrInvalidDomain, r.opts.ImportAs))
		}
	}

	r.log.Info("import options", "options", r.opts, "domain", domainName, "origin", r.origin)

	if r.single {
		d, err := r.importDomain(ctx, domainName)
		if err != nil || d == nil {
			return nil, err
		}
		return []domain.Domain{*d}, nil
	}
	return r.importAllDomains(ctx)
}

// checkOverrides validates the caller's provenance overrides. Untrusted
// callers may neither replace the source's origin nor claim system
// provenance.
func (r *importRun) checkOverrides() error {
	const op = "import.Overrides"

	if r.opts.Source != nil && !r.opts.Source.Valid() {
		return domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("unknown domain source %q", *r.opts.Source))
	}
	if r.opts.Origin != "" && !r.opts.Origin.Valid() {
		return domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("unknown import origin %q", r.opts.Origin))
	}
	if r.opts.Trusted {
		return nil
	}
	if r.opts.Origin != "" && r.opts.Origin != r.source.Origin() {
		return denied(op, domain.ErrDomainNotAccessible, "origin override requires a trusted caller")
	}
	if r.opts.Source != nil && *r.opts.Source == domain.SourceSystem {
		return denied(op, domain.ErrDomainNotAccessible, "system source override requires a trusted caller")
	}
	return nil
}

// checkSourceChange refuses an untrusted source override that would change
// the provenance of a locked domain.
func (r *importRun) checkSourceChange(existing *domain.Domain) error {
	if r.opts.Trusted || r.opts.Source == nil || existing == nil || domain.IsRootDomain(existing.Name) {
		return nil
	}
	if existing.ContentsLocked() && *r.opts.Source != existing.Source {
		return denied("import.Overrides", domain.ErrDomainNotAccessible, "cannot change the source of a locked domain")
	}
	return nil
}

func (r *importRun) renaming() bool {
	return r.opts.ImportAs != "" && r.opts.ImportAs != domain.AllDomains
}

func (r *importRun) resolveTenant(ctx context.Context) error {
	const op = "import.ResolveTenant"

	switch {
	case r.opts.Tenant != nil:
		r.tenant = *r.opts.Tenant
	case r.opts.TenantID != nil:
		t, err := r.svc.tenants.FindTenantByID(ctx, *r.opts.TenantID)
		if err != nil {
			return storageError(op, err)
		}
		if t == nil {
			return domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("tenant %d: %w", *r.opts.TenantID, domain.ErrNotFound))
		}
		r.tenant = *t
	default:
		t, err := r.svc.tenants.RootTenant(ctx)
		if err != nil {
			return storageError(op, err)
		}
		r.tenant = t
	}
	return nil
}

func (r *importRun) importAllDomains(ctx context.Context) ([]domain.Domain, error) {
	const op = "import.AllDomains"

	names, err := r.source.ListDomains(ctx)
	if err != nil {
		return nil, inputError(op, err)
	}

	type entry struct {
		name     string
		priority *int
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		attrs, err := r.source.ReadDomain(ctx, name)
		if err != nil {
			return nil, inputError(op, err)
		}
		entries = append(entries, entry{name: name, priority: attrs.Priority})
	}
	// Domains without a declared priority go last.
	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.priority == nil && b.priority == nil:
			return 0
		case a.priority == nil:
			return 1
		case b.priority == nil:
			return -1
		}
		return cmp.Compare(*a.priority, *b.priority)
	})

	imported := make([]domain.Domain, 0, len(entries))
	for _, e := range entries {
		d, err := r.importDomain(ctx, e.name)
		if err != nil {
			return imported, err
		}
		if d != nil {
			imported = append(imported, *d)
		}
	}

	if r.opts.Restore && !r.opts.Preview {
		err := r.svc.store.WithinTransaction(ctx, func(tx domain.Datastore) error {
			if err := tx.ResetDefaultNamespace(ctx); err != nil {
				return err
			}
			return tx.ResetDomainPriorities(ctx)
		})
		if err != nil {
			return imported, storageError(op, err)
		}
	}
	return imported, nil
}

// domainProperties reads and normalizes the attributes of the domain stored
// under sourceName.
func (r *importRun) domainProperties(ctx context.Context, sourceName string) (domain.DomainAttributes, error) {
	attrs, err := r.source.ReadDomain(ctx, sourceName)
	if err != nil {
		return domain.DomainAttributes{}, inputError("import.DomainProperties", err)
	}
	name := sourceName
	if r.single && r.renaming() {
		name = r.opts.ImportAs
		attrs.Name = name
	}
	if attrs.Name == "" {
		attrs.Name = name
	}
	return NormalizeDomainAttributes(attrs, domain.IsRootDomain(name), r.opts.Restore), nil
}

func (r *importRun) importDomain(ctx context.Context, sourceName string) (*domain.Domain, error) {
	const op = "import.Domain"

	attrs, err := r.domainProperties(ctx, sourceName)
	if err != nil {
		return nil, err
	}
	name := attrs.Name
	r.log.Info("importing domain", "domain", name, "source_domain", sourceName)

	ctx, span := r.svc.tracer.Start(ctx, "automate.import.domain", trace.WithAttributes(
		attribute.String("automate.domain", name),
		attribute.String("automate.source_domain", sourceName),
	))
	defer span.End()

	var imported *domain.Domain
	err = r.svc.store.WithinTransaction(ctx, func(tx domain.Datastore) error {
		existing, err := tx.FindDomainByName(ctx, name)
		if err != nil {
			return storageError(op, err)
		}

		if !r.opts.Trusted {
			err := CheckDomainImport(PolicyInput{
				SourceDomain:      sourceName,
				DestinationDomain: name,
				SourceProvenance:  deref(attrs.Source),
				Destination:       existing,
				Origin:            r.origin,
				BaseDomains:       r.svc.baseDomains,
			})
			if err != nil {
				return err
			}
			if err := r.checkSourceChange(existing); err != nil {
				return err
			}
		}

		r.stats.Record(LevelDomain, existing != nil)

		dom := existing
		if !r.opts.Preview {
			if existing != nil && r.opts.Overwrite {
				if err := tx.DestroyDomainNamespaces(ctx, existing.ID); err != nil {
					return storageError(op, err)
				}
			}
			if existing == nil {
				created, err := r.createDomain(ctx, tx, attrs)
				if err != nil {
					return err
				}
				dom = &created
			}
		}

		w := &domainWalk{run: r, tx: tx, refs: r.referenceStore(tx), domain: dom, name: name, sourceName: sourceName}
		if r.opts.Namespace != "" {
			if err := w.importNamespace(ctx, cleanNamespacePath(r.opts.Namespace)); err != nil {
				return err
			}
		} else if err := w.importChildNamespaces(ctx, ""); err != nil {
			return err
		}

		if dom != nil && !r.opts.Preview {
			refreshed, err := r.refreshDomain(ctx, tx, *dom)
			if err != nil {
				return err
			}
			dom = &refreshed
		}
		imported = dom
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageError(op, err)
	}
	return imported, nil
}

// referenceStore prefers the transaction when it can also serve reference
// lookups, so that reads do not contend with the open write transaction.
func (r *importRun) referenceStore(tx domain.Datastore) domain.ReferenceStore {
	if refs, ok := tx.(domain.ReferenceStore); ok {
		return refs
	}
	return r.svc.refs
}

func (r *importRun) createDomain(ctx context.Context, tx domain.Datastore, attrs domain.DomainAttributes) (domain.Domain, error) {
	const op = "import.CreateDomain"

	value := domain.Domain{
		Name:        attrs.Name,
		Description: attrs.Description,
		DisplayName: attrs.DisplayName,
		TenantID:    r.tenant.ID,
		Source:      domain.SourceUser,
	}
	if r.opts.Restore && attrs.TenantID != nil {
		value.TenantID = *attrs.TenantID
	}
	if attrs.Source != nil {
		value.Source = *attrs.Source
	}
	if attrs.Enabled != nil {
		value.Enabled = *attrs.Enabled
	}
	if attrs.Priority != nil {
		value.Priority = *attrs.Priority
	} else {
		highest, err := tx.MaxDomainPriority(ctx)
		if err != nil {
			return domain.Domain{}, storageError(op, err)
		}
		value.Priority = highest + 1
	}

	created, err := tx.CreateDomain(ctx, value)
	if err != nil {
		return domain.Domain{}, storageError(op, err)
	}
	return created, nil
}

// refreshDomain applies the caller's enabled/source overrides. The root
// domain keeps its fixed attributes.
func (r *importRun) refreshDomain(ctx context.Context, tx domain.Datastore, d domain.Domain) (domain.Domain, error) {
	if domain.IsRootDomain(d.Name) || (r.opts.Enabled == nil && r.opts.Source == nil) {
		return d, nil
	}
	updated, err := tx.UpdateDomain(ctx, d.ID, domain.DomainUpdate{Enabled: r.opts.Enabled, Source: r.opts.Source})
	if err != nil {
		return domain.Domain{}, storageError("import.RefreshDomain", err)
	}
	return updated, nil
}

// domainWalk carries the state of one domain's traversal. domain is nil when
// previewing a domain that does not exist yet.
type domainWalk struct {
	run        *importRun
	tx         domain.Datastore
	refs       domain.ReferenceStore
	domain     *domain.Domain
	name       string
	sourceName string
}

func (w *domainWalk) importChildNamespaces(ctx context.Context, parent string) error {
	children, err := w.run.source.ListNamespaces(ctx, w.sourceName, parent)
	if err != nil {
		return inputError("import.Namespaces", err)
	}
	for _, child := range children {
		if err := w.importNamespace(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (w *domainWalk) importNamespace(ctx context.Context, nsPath string) error {
	const op = "import.Namespace"

	attrs, err := w.run.source.ReadNamespace(ctx, w.sourceName, nsPath)
	if err != nil {
		return inputError(op, err)
	}
	fqname := NamespaceFullName(w.name, nsPath)
	w.run.log.Info("importing namespace", "fqname", fqname)

	existing, err := w.tx.FindNamespaceByFullName(ctx, fqname)
	if err != nil {
		return storageError(op, err)
	}
	w.run.stats.Record(LevelNamespace, existing != nil)

	ns := existing
	if !w.run.opts.Preview {
		if ns == nil {
			created, err := w.createNamespace(ctx, fqname, attrs)
			if err != nil {
				return err
			}
			ns = &created
		} else {
			updated, err := w.tx.UpdateNamespace(ctx, ns.ID, attrs.DisplayName, attrs.Description)
			if err != nil {
				return storageError(op, err)
			}
			ns = &updated
		}
	}

	if w.run.opts.ClassName != "" {
		return w.importClass(ctx, ns, nsPath, w.run.opts.ClassName)
	}

	classes, err := w.run.source.ListClasses(ctx, w.sourceName, nsPath)
	if err != nil {
		return inputError(op, err)
	}
	for _, class := range classes {
		if err := w.importClass(ctx, ns, nsPath, class); err != nil {
			return err
		}
	}
	return w.importChildNamespaces(ctx, nsPath)
}

// createNamespace creates fqname, creating any missing ancestors below the
// domain first.
func (w *domainWalk) createNamespace(ctx context.Context, fqname string, attrs domain.NamespaceAttributes) (domain.Namespace, error) {
	const op = "import.CreateNamespace"

	value := domain.Namespace{
		DomainID:    w.domain.ID,
		FQName:      fqname,
		Name:        path.Base(fqname),
		DisplayName: attrs.DisplayName,
		Description: attrs.Description,
	}

	parentName := path.Dir(fqname)
	if !strings.EqualFold(parentName, w.name) && parentName != "." {
		parent, err := w.tx.FindNamespaceByFullName(ctx, parentName)
		if err != nil {
			return domain.Namespace{}, storageError(op, err)
		}
		if parent == nil {
			created, err := w.createNamespace(ctx, parentName, domain.NamespaceAttributes{Name: path.Base(parentName)})
			if err != nil {
				return domain.Namespace{}, err
			}
			parent = &created
		}
		value.ParentID = &parent.ID
	}

	created, err := w.tx.CreateNamespace(ctx, value)
	if err != nil {
		return domain.Namespace{}, storageError(op, err)
	}
	return created, nil
}

func (w *domainWalk) importClass(ctx context.Context, ns *domain.Namespace, nsPath, className string) error {
	const op = "import.Class"

	def, err := w.run.source.ReadClass(ctx, w.sourceName, nsPath, className)
	if err != nil {
		return inputError(op, err)
	}
	name := cmp.Or(def.Attributes.Name, className)

	var existing *domain.Class
	if ns != nil {
		existing, err = w.tx.FindClassByNamespaceAndName(ctx, ns.ID, name)
		if err != nil {
			return storageError(op, err)
		}
	}
	w.run.stats.Record(LevelClass, existing != nil)

	class := existing
	if !w.run.opts.Preview && class == nil {
		created, err := w.tx.CreateClass(ctx, domain.Class{
			NamespaceID: ns.ID,
			Name:        name,
			DisplayName: def.Attributes.DisplayName,
			Description: def.Attributes.Description,
			Type:        def.Attributes.Type,
			Inherits:    def.Attributes.Inherits,
			Visibility:  def.Attributes.Visibility,
			Schema:      def.Schema,
		})
		if err != nil {
			return storageError(op, err)
		}
		class = &created
		w.run.log.Info("importing class", "class", name)
	}

	for _, inst := range def.Instances {
		if err := w.importInstance(ctx, class, inst); err != nil {
			return err
		}
	}
	for _, m := range def.Methods {
		if err := w.importMethod(ctx, class, m); err != nil {
			return err
		}
	}
	return nil
}

func (w *domainWalk) importInstance(ctx context.Context, class *domain.Class, def domain.InstanceDefinition) error {
	const op = "import.Instance"

	var existing *domain.Instance
	if class != nil {
		var err error
		existing, err = w.tx.FindInstanceByClassAndName(ctx, class.ID, def.Name)
		if err != nil {
			return storageError(op, err)
		}
	}
	w.run.stats.Record(LevelInstance, existing != nil)

	if w.run.opts.Preview || existing != nil {
		return nil
	}
	_, err := w.tx.CreateInstance(ctx, domain.Instance{
		ClassID:     class.ID,
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Description: def.Description,
		Values:      def.Values,
	})
	if err != nil {
		return storageError(op, err)
	}
	return nil
}

func (w *domainWalk) importMethod(ctx context.Context, class *domain.Class, def domain.MethodDefinition) error {
	const op = "import.Method"

	attrs := def.Attributes
	var data string
	switch ClassifyMethodMode(attrs) {
	case domain.MethodModeInline:
		if def.Script != nil {
			data = *def.Script
		}
	case domain.MethodModePlaybook:
		options, err := ResolveReferences(ctx, w.refs, cmp.Or(def.File, attrs.Name), attrs.Options)
		if err != nil {
			return err
		}
		attrs.Options = options
	}

	var existing *domain.Method
	if class != nil {
		var err error
		existing, err = w.tx.FindMethodByClassAndName(ctx, class.ID, attrs.Name)
		if err != nil {
			return storageError(op, err)
		}
	}
	w.run.stats.Record(LevelMethod, existing != nil)

	if w.run.opts.Preview || existing != nil {
		return nil
	}
	_, err := w.tx.CreateMethod(ctx, domain.Method{
		ClassID:     class.ID,
		Name:        attrs.Name,
		DisplayName: attrs.DisplayName,
		Description: attrs.Description,
		Location:    attrs.Location,
		Language:    attrs.Language,
		Scope:       attrs.Scope,
		Data:        data,
		Options:     attrs.Options,
		Inputs:      def.Inputs,
	})
	if err != nil {
		return storageError(op, err)
	}
	return nil
}

// NamespaceFullName joins the domain name and a namespace path relative to
// the domain folder.
func NamespaceFullName(domainName, nsPath string) string {
	nsPath = cleanNamespacePath(nsPath)
	if nsPath == "" {
		return domainName
	}
	return domainName + "/" + nsPath
}

func cleanNamespacePath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *domain.ImportError
	if errors.As(err, &ie) {
		return err
	}
	return domain.NewImportError(op, domain.KindStorage, err)
}

func inputError(op string, err error) error {
	var ie *domain.ImportError
	if errors.As(err, &ie) {
		return err
	}
	return domain.NewImportError(op, domain.KindInvalidInput, err)
}
