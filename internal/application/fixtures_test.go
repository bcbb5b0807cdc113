package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/adapters/db/sqlite"
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/stretchr/testify/require"
)

type memNamespace struct {
	attrs   domain.NamespaceAttributes
	classes map[string]domain.ClassDefinition
}

type memDomain struct {
	attrs      domain.DomainAttributes
	namespaces map[string]memNamespace
}

// memTree is an in-memory TreeSource keyed by domain folder name and
// namespace path.
type memTree struct {
	origin  domain.Origin
	domains map[string]memDomain
}

func (m *memTree) Origin() domain.Origin {
	if m.origin == "" {
		return domain.OriginFilesystem
	}
	return m.origin
}

func (m *memTree) ListDomains(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTree) domain(name string) (memDomain, error) {
	d, ok := m.domains[name]
	if !ok {
		return memDomain{}, domain.NewImportError("memTree", domain.KindInvalidInput, fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, name))
	}
	return d, nil
}

func (m *memTree) ReadDomain(ctx context.Context, name string) (domain.DomainAttributes, error) {
	d, err := m.domain(name)
	return d.attrs, err
}

func (m *memTree) ListNamespaces(ctx context.Context, domainName, parent string) ([]string, error) {
	d, err := m.domain(domainName)
	if err != nil {
		return nil, err
	}
	if parent == "" {
		parent = "."
	}
	var paths []string
	for p := range d.namespaces {
		if path.Dir(p) == parent {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *memTree) namespace(domainName, nsPath string) (memNamespace, error) {
	d, err := m.domain(domainName)
	if err != nil {
		return memNamespace{}, err
	}
	ns, ok := d.namespaces[nsPath]
	if !ok {
		return memNamespace{}, fmt.Errorf("namespace %s/%s not found", domainName, nsPath)
	}
	return ns, nil
}

func (m *memTree) ReadNamespace(ctx context.Context, domainName, nsPath string) (domain.NamespaceAttributes, error) {
	ns, err := m.namespace(domainName, nsPath)
	return ns.attrs, err
}

func (m *memTree) ListClasses(ctx context.Context, domainName, nsPath string) ([]string, error) {
	ns, err := m.namespace(domainName, nsPath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ns.classes))
	for name := range ns.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTree) ReadClass(ctx context.Context, domainName, nsPath, class string) (domain.ClassDefinition, error) {
	ns, err := m.namespace(domainName, nsPath)
	if err != nil {
		return domain.ClassDefinition{}, err
	}
	def, ok := ns.classes[class]
	if !ok {
		return domain.ClassDefinition{}, fmt.Errorf("class %s not found in %s/%s", class, domainName, nsPath)
	}
	return def, nil
}

func pingClass(methodOptions map[string]any) domain.ClassDefinition {
	script := "exit MIQ_OK\n"
	return domain.ClassDefinition{
		Attributes: domain.ClassAttributes{Name: "Ping"},
		Schema:     []domain.ClassField{{Name: "execute", AeType: "method", Priority: 1}},
		Instances: []domain.InstanceDefinition{
			{Name: "default", Values: []domain.InstanceValue{{Field: "execute", Value: "ping"}}},
			{Name: "loud", Values: []domain.InstanceValue{{Field: "execute", Value: "ping_loud"}}},
		},
		Methods: []domain.MethodDefinition{
			{
				File:       "Ping.class/__methods__/ping.yaml",
				Attributes: domain.MethodAttributes{Name: "ping", Location: "inline", Language: "ruby"},
				Script:     &script,
			},
			{
				File:       "Ping.class/__methods__/ping_playbook.yaml",
				Attributes: domain.MethodAttributes{Name: "ping_playbook", Location: "playbook", Options: methodOptions},
			},
		},
	}
}

// customerDomain builds a domain with the namespaces System and
// System/Request, the latter holding the Ping class.
func customerDomain(name string, priority *int, options map[string]any) memDomain {
	return memDomain{
		attrs: domain.DomainAttributes{Name: name, Description: name + " domain", Priority: priority},
		namespaces: map[string]memNamespace{
			"System": {
				attrs:   domain.NamespaceAttributes{Name: "System", DisplayName: "System", Description: "entry points"},
				classes: map[string]domain.ClassDefinition{},
			},
			"System/Request": {
				attrs:   domain.NamespaceAttributes{Name: "Request"},
				classes: map[string]domain.ClassDefinition{"Ping": pingClass(options)},
			},
		},
	}
}

func resolvableOptions() map[string]any {
	return map[string]any{"repository_name": "ansible-repo", "playbook_name": "ping.yml", "hosts": "localhost"}
}

func openStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "automate_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	_, err = sqlite.RunMigrations(ctx, db)
	require.NoError(t, err)

	repo := sqlite.NewRepository(db)
	_, err = repo.CreateReference(ctx, domain.Reference{Kind: domain.ReferenceRepository, Name: "ansible-repo"})
	require.NoError(t, err)
	_, err = repo.CreateReference(ctx, domain.Reference{Kind: domain.ReferencePlaybook, Name: "ping.yml"})
	require.NoError(t, err)
	return repo
}

func newTestService(repo *sqlite.Repository, cfg Config) *ImportService {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewImportService(repo, repo, repo, cfg)
}
