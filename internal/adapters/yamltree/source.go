// Package yamltree reads automate trees exported as YAML files, either from
// a directory or from a zip archive with the same layout.
package yamltree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/klauspost/compress/zip"
)

const (
	DomainFile    = "__domain__.yaml"
	NamespaceFile = "__namespace__.yaml"
	ClassFile     = "__class__.yaml"
	MethodsDir    = "__methods__"
	ClassDirExt   = ".class"
	ScriptExt     = ".rb"
)

type Source struct {
	fsys   fs.FS
	origin domain.Origin
	closer io.Closer
}

// Open opens an export directory, or a .zip archive of one.
func Open(p string) (*Source, error) {
	const op = "yamltree.Open"

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("%w: [%s]", domain.ErrDirectoryNotFound, p))
		}
		return nil, domain.NewImportError(op, domain.KindInvalidInput, err)
	}

	if info.IsDir() {
		return New(os.DirFS(p), domain.OriginFilesystem), nil
	}
	if !strings.EqualFold(path.Ext(p), ".zip") {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("%w: [%s] is neither a directory nor a zip archive", domain.ErrDirectoryNotFound, p))
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("open archive %s: %w", p, err))
	}
	fsys, err := archiveRoot(zr)
	if err != nil {
		_ = zr.Close()
		return nil, domain.NewImportError(op, domain.KindInvalidInput, err)
	}
	s := New(fsys, domain.OriginArchive)
	s.closer = zr
	return s, nil
}

// OpenWithin opens rel below root. rel must be a local path that stays
// inside root.
func OpenWithin(root, rel string) (*Source, error) {
	const op = "yamltree.OpenWithin"

	if strings.TrimSpace(root) == "" {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, errors.New("import root is not configured"))
	}
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return nil, domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("source path %q must be relative to the import root", rel))
	}
	return Open(filepath.Join(root, rel))
}

func New(fsys fs.FS, origin domain.Origin) *Source {
	return &Source{fsys: fsys, origin: origin}
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Source) Origin() domain.Origin {
	return s.origin
}

// archiveRoot descends into the single top-level folder that archives
// commonly wrap their contents in.
func archiveRoot(fsys fs.FS) (fs.FS, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return fsys, nil
	}
	top := entries[0].Name()
	if exists(fsys, path.Join(top, DomainFile)) {
		return fsys, nil
	}
	return fs.Sub(fsys, top)
}

func (s *Source) ListDomains(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && exists(s.fsys, path.Join(e.Name(), DomainFile)) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *Source) ReadDomain(ctx context.Context, name string) (domain.DomainAttributes, error) {
	const op = "yamltree.ReadDomain"

	if !isDir(s.fsys, name) {
		return domain.DomainAttributes{}, domain.NewImportError(op, domain.KindInvalidInput, fmt.Errorf("%w: domain [%s]", domain.ErrDirectoryNotFound, name))
	}
	doc, err := s.load(path.Join(name, DomainFile))
	if err != nil {
		return domain.DomainAttributes{}, domain.NewImportError(op, domain.KindInvalidInput, err)
	}
	return domainAttributes(doc.Object.Attributes)
}

func (s *Source) ListNamespaces(ctx context.Context, domainName, parent string) ([]string, error) {
	dir := path.Join(domainName, parent)
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list namespaces of %s: %w", dir, err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ClassDirExt) {
			continue
		}
		if exists(s.fsys, path.Join(dir, e.Name(), NamespaceFile)) {
			paths = append(paths, path.Join(parent, e.Name()))
		}
	}
	return paths, nil
}

func (s *Source) ReadNamespace(ctx context.Context, domainName, nsPath string) (domain.NamespaceAttributes, error) {
	doc, err := s.load(path.Join(domainName, nsPath, NamespaceFile))
	if err != nil {
		return domain.NamespaceAttributes{}, domain.NewImportError("yamltree.ReadNamespace", domain.KindInvalidInput, err)
	}
	a := doc.Object.Attributes
	return domain.NamespaceAttributes{
		Name:        stringAttr(a, "name"),
		DisplayName: stringAttr(a, "display_name"),
		Description: stringAttr(a, "description"),
	}, nil
}

func (s *Source) ListClasses(ctx context.Context, domainName, nsPath string) ([]string, error) {
	dir := path.Join(domainName, nsPath)
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list classes of %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ClassDirExt) {
			continue
		}
		if exists(s.fsys, path.Join(dir, e.Name(), ClassFile)) {
			names = append(names, strings.TrimSuffix(e.Name(), ClassDirExt))
		}
	}
	return names, nil
}

func (s *Source) ReadClass(ctx context.Context, domainName, nsPath, class string) (domain.ClassDefinition, error) {
	const op = "yamltree.ReadClass"

	dir := path.Join(domainName, nsPath, class+ClassDirExt)
	doc, err := s.load(path.Join(dir, ClassFile))
	if err != nil {
		return domain.ClassDefinition{}, domain.NewImportError(op, domain.KindInvalidInput, err)
	}
	def := domain.ClassDefinition{
		Attributes: classAttributes(doc.Object.Attributes),
		Schema:     classSchema(doc.Object.Schema),
	}

	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return domain.ClassDefinition{}, domain.NewImportError(op, domain.KindInvalidInput, err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ClassFile || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		inst, err := s.load(path.Join(dir, e.Name()))
		if err != nil {
			return domain.ClassDefinition{}, domain.NewImportError(op, domain.KindInvalidInput, err)
		}
		def.Instances = append(def.Instances, instanceDefinition(inst))
	}

	methods, err := s.readMethods(path.Join(dir, MethodsDir))
	if err != nil {
		return domain.ClassDefinition{}, domain.NewImportError(op, domain.KindInvalidInput, err)
	}
	def.Methods = methods
	return def, nil
}

func (s *Source) readMethods(dir string) ([]domain.MethodDefinition, error) {
	if !isDir(s.fsys, dir) {
		return nil, nil
	}
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, err
	}
	var methods []domain.MethodDefinition
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		file := path.Join(dir, e.Name())
		doc, err := s.load(file)
		if err != nil {
			return nil, err
		}
		m := domain.MethodDefinition{
			File:       file,
			Attributes: methodAttributes(doc.Object.Attributes),
			Inputs:     methodInputs(doc.Object.Inputs),
		}
		script, err := fs.ReadFile(s.fsys, strings.TrimSuffix(file, ".yaml")+ScriptExt)
		switch {
		case err == nil:
			text := string(script)
			m.Script = &text
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func exists(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}

func isDir(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}
