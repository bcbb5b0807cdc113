package application

import (
	"context"
	"errors"
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReferences struct {
	refs map[domain.ReferenceKind]map[string]uint
	err  error
}

func (f fakeReferences) find(kind domain.ReferenceKind, name string) (*domain.Reference, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.refs[kind][name]
	if !ok {
		return nil, nil
	}
	return &domain.Reference{ID: id, Kind: kind, Name: name}, nil
}

func (f fakeReferences) FindRepositoryByName(ctx context.Context, name string) (*domain.Reference, error) {
	return f.find(domain.ReferenceRepository, name)
}

func (f fakeReferences) FindPlaybookByName(ctx context.Context, name string) (*domain.Reference, error) {
	return f.find(domain.ReferencePlaybook, name)
}

func (f fakeReferences) FindCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return f.find(domain.ReferenceCredential, name)
}

func (f fakeReferences) FindVaultCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return f.find(domain.ReferenceVaultCredential, name)
}

func (f fakeReferences) FindCloudCredentialByName(ctx context.Context, name string) (*domain.Reference, error) {
	return f.find(domain.ReferenceCloudCredential, name)
}

func TestResolveReferencesReplacesNamesWithIDs(t *testing.T) {
	store := fakeReferences{refs: map[domain.ReferenceKind]map[string]uint{
		domain.ReferenceRepository:      {"ansible-repo": 4},
		domain.ReferencePlaybook:        {"ping.yml": 17},
		domain.ReferenceCloudCredential: {"aws": 2},
	}}
	in := map[string]any{
		"repository_name":       "ansible-repo",
		"playbook_name":         "ping.yml",
		"cloud_credential_name": "aws",
		"hosts":                 "localhost",
	}

	out, err := ResolveReferences(context.Background(), store, "ping.yaml", in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"repository_id":       "4",
		"playbook_id":         "17",
		"cloud_credential_id": "2",
		"hosts":               "localhost",
	}, out)
	assert.Equal(t, "ansible-repo", in["repository_name"], "input must not be modified")
}

func TestResolveReferencesAggregatesFailures(t *testing.T) {
	store := fakeReferences{refs: map[domain.ReferenceKind]map[string]uint{
		domain.ReferencePlaybook: {"ping.yml": 17},
	}}
	in := map[string]any{
		"repository_name": "missing-repo",
		"playbook_name":   "ping.yml",
		"credential_name": "missing-cred",
	}

	out, err := ResolveReferences(context.Background(), store, "ping.yaml", in)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, domain.KindUnresolvedReference, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrAttributeNotFound)

	var refErr *domain.ReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, "ping.yaml", refErr.Method)
	assert.Equal(t, []domain.ReferenceKind{domain.ReferenceRepository, domain.ReferenceCredential}, refErr.Kinds())
	assert.Contains(t, err.Error(), "missing-repo")
	assert.Contains(t, err.Error(), "missing-cred")
	assert.NotContains(t, in, "playbook_id")
}

func TestResolveReferencesWithoutReferences(t *testing.T) {
	out, err := ResolveReferences(context.Background(), fakeReferences{}, "m", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResolveReferencesStorageFailure(t *testing.T) {
	store := fakeReferences{err: errors.New("disk on fire")}
	_, err := ResolveReferences(context.Background(), store, "m", map[string]any{"credential_name": "c"})
	require.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestResolveReferencesEmptyNameIsUnresolved(t *testing.T) {
	store := fakeReferences{refs: map[domain.ReferenceKind]map[string]uint{
		domain.ReferenceRepository: {"ansible-repo": 4},
	}}
	_, err := ResolveReferences(context.Background(), store, "m", map[string]any{
		"repository_name": "ansible-repo",
		"credential_name": "",
		"playbook_name":   nil,
	})
	require.Error(t, err)

	var refErr *domain.ReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Len(t, refErr.Unresolved, 1)
	assert.Equal(t, domain.ReferenceCredential, refErr.Unresolved[0].Kind)
}
