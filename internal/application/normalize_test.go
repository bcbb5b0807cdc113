package application

import (
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRootDomainForcesFixedAttributes(t *testing.T) {
	inputs := []domain.DomainAttributes{
		{Name: "manageiq"},
		{Name: "MANAGEIQ", Priority: ptr(42), Source: ptr(domain.SourceUser), Enabled: ptr(false), System: ptr(true)},
		{Name: "ManageIQ", Source: ptr(domain.SourceUserLocked), System: ptr(false), TenantID: ptr(uint(9))},
	}
	for _, in := range inputs {
		for _, restore := range []bool{false, true} {
			out := NormalizeDomainAttributes(in, true, restore)
			assert.Equal(t, domain.RootDomainName, out.Name)
			require.NotNil(t, out.Priority)
			assert.Equal(t, domain.RootDomainPriority, *out.Priority)
			require.NotNil(t, out.Source)
			assert.Equal(t, domain.SourceSystem, *out.Source)
			require.NotNil(t, out.Enabled)
			assert.True(t, *out.Enabled)
			assert.Nil(t, out.System)
		}
	}
}

func TestNormalizeUserDomain(t *testing.T) {
	in := domain.DomainAttributes{
		Name:     "Customer",
		Priority: ptr(3),
		Enabled:  ptr(true),
		TenantID: ptr(uint(2)),
	}

	out := NormalizeDomainAttributes(in, false, false)
	assert.Nil(t, out.Priority)
	assert.Nil(t, out.Enabled)
	assert.Nil(t, out.TenantID)
	assert.Nil(t, out.Source)

	restored := NormalizeDomainAttributes(in, false, true)
	assert.Nil(t, restored.Priority, "priority is recomputed even on restore")
	require.NotNil(t, restored.Enabled)
	assert.True(t, *restored.Enabled)
	require.NotNil(t, restored.TenantID)
	assert.Equal(t, uint(2), *restored.TenantID)

	require.NotNil(t, in.Priority, "input must not be modified")
	require.NotNil(t, in.Enabled)
}

func TestNormalizeSystemMarker(t *testing.T) {
	locked := NormalizeDomainAttributes(domain.DomainAttributes{Name: "A", System: ptr(true)}, false, false)
	require.NotNil(t, locked.Source)
	assert.Equal(t, domain.SourceUserLocked, *locked.Source)
	assert.Nil(t, locked.System)
	assert.Nil(t, locked.Enabled)

	unlocked := NormalizeDomainAttributes(domain.DomainAttributes{Name: "A", System: ptr(false), Source: ptr(domain.SourceSystem)}, false, false)
	require.NotNil(t, unlocked.Source)
	assert.Equal(t, domain.SourceUser, *unlocked.Source, "the marker wins over an explicit source")
	assert.Nil(t, unlocked.Enabled)
}

func TestNormalizeSystemSourceIsAlwaysEnabled(t *testing.T) {
	out := NormalizeDomainAttributes(domain.DomainAttributes{Name: "Vendor", Source: ptr(domain.SourceSystem), Enabled: ptr(false)}, false, true)
	require.NotNil(t, out.Enabled)
	assert.True(t, *out.Enabled)
	assert.Equal(t, domain.SourceSystem, *out.Source)
}

func TestClassifyMethodMode(t *testing.T) {
	tests := map[string]domain.MethodMode{
		"inline":   domain.MethodModeInline,
		"playbook": domain.MethodModePlaybook,
		"builtin":  domain.MethodModeOther,
		"":         domain.MethodModeOther,
	}
	for location, want := range tests {
		assert.Equal(t, want, ClassifyMethodMode(domain.MethodAttributes{Location: location}), location)
	}
}
