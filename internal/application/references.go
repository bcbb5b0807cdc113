package application

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

type referenceRule struct {
	kind   domain.ReferenceKind
	lookup func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error)
	hint   func(options map[string]any) string
}

func (r referenceRule) nameKey() string { return string(r.kind) + "_name" }
func (r referenceRule) idKey() string   { return string(r.kind) + "_id" }

// referenceRules is ordered; unresolved references are reported in this order.
var referenceRules = []referenceRule{
	{
		kind: domain.ReferenceRepository,
		lookup: func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error) {
			return store.FindRepositoryByName(ctx, name)
		},
		hint: func(o map[string]any) string {
			return fmt.Sprintf("Repository '%s' not found in database. Please try and import this repo into this appliance and retry the import. "+
				"If the repository has been deleted this import will never succeed.", optionString(o, "repository_name"))
		},
	},
	{
		kind: domain.ReferencePlaybook,
		lookup: func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error) {
			return store.FindPlaybookByName(ctx, name)
		},
		hint: func(o map[string]any) string {
			return fmt.Sprintf("Playbook '%s' not found in repository '%s', you can refresh the repo or change the branch or tag and retry the import, "+
				"if the playbook doesn't exist in the repo this import will never succeed.", optionString(o, "playbook_name"), optionString(o, "repository_name"))
		},
	},
	{
		kind: domain.ReferenceCredential,
		lookup: func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error) {
			return store.FindCredentialByName(ctx, name)
		},
		hint: func(o map[string]any) string {
			return fmt.Sprintf("Credential '%s' doesn't exist in the appliance, please add this credential and retry the import.", optionString(o, "credential_name"))
		},
	},
	{
		kind: domain.ReferenceVaultCredential,
		lookup: func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error) {
			return store.FindVaultCredentialByName(ctx, name)
		},
		hint: func(o map[string]any) string {
			return fmt.Sprintf("Vault Credential '%s' doesn't exist in the appliance, please add this credential and retry the import.", optionString(o, "vault_credential_name"))
		},
	},
	{
		kind: domain.ReferenceCloudCredential,
		lookup: func(ctx context.Context, store domain.ReferenceStore, name string) (*domain.Reference, error) {
			return store.FindCloudCredentialByName(ctx, name)
		},
		hint: func(o map[string]any) string {
			return fmt.Sprintf("Cloud Credential '%s' doesn't exist in the appliance, please add this credential and retry the import.", optionString(o, "cloud_credential_name"))
		},
	},
}

// ResolveReferences replaces the named references of a playbook method's
// options with the ids of the persisted entities. The input map is never
// modified; on failure no options are returned.
func ResolveReferences(ctx context.Context, store domain.ReferenceStore, method string, options map[string]any) (map[string]any, error) {
	const op = "references.Resolve"

	out := maps.Clone(options)
	if out == nil {
		out = map[string]any{}
	}

	var unresolved []domain.UnresolvedReference
	for _, rule := range referenceRules {
		if !hasOption(options, rule.nameKey()) {
			continue
		}
		ref, err := rule.lookup(ctx, store, optionString(options, rule.nameKey()))
		if err != nil {
			return nil, domain.NewImportError(op, domain.KindStorage, err)
		}
		if ref == nil {
			unresolved = append(unresolved, domain.UnresolvedReference{Kind: rule.kind, Hint: rule.hint(options)})
			continue
		}
		out[rule.idKey()] = strconv.FormatUint(uint64(ref.ID), 10)
	}

	if len(unresolved) > 0 {
		return nil, domain.NewImportError(op, domain.KindUnresolvedReference, &domain.ReferenceError{Method: method, Unresolved: unresolved})
	}

	for _, rule := range referenceRules {
		delete(out, rule.nameKey())
	}
	return out, nil
}

func hasOption(options map[string]any, key string) bool {
	v, ok := options[key]
	return ok && v != nil
}

func optionString(options map[string]any, key string) string {
	v, ok := options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
