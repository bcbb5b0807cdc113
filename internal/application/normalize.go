package application

import (
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

// NormalizeDomainAttributes rewrites a domain's attribute bag before it is
// persisted. The input is not modified.
func NormalizeDomainAttributes(attrs domain.DomainAttributes, isRootDomain, isRestore bool) domain.DomainAttributes {
	out := attrs
	if isRootDomain {
		out.Name = domain.RootDomainName
		out.Priority = ptr(domain.RootDomainPriority)
		out.Source = ptr(domain.SourceSystem)
		out.Enabled = ptr(true)
		out.System = nil
		return out
	}

	if !isRestore {
		out.Enabled = nil
		out.TenantID = nil
	}
	out.Priority = nil

	if out.System != nil {
		if *out.System {
			out.Source = ptr(domain.SourceUserLocked)
		} else {
			out.Source = ptr(domain.SourceUser)
		}
		out.System = nil
	}

	if out.Source != nil && *out.Source == domain.SourceSystem {
		out.Enabled = ptr(true)
	}
	return out
}

func ClassifyMethodMode(attrs domain.MethodAttributes) domain.MethodMode {
	switch attrs.Location {
	case string(domain.MethodModeInline):
		return domain.MethodModeInline
	case string(domain.MethodModePlaybook):
		return domain.MethodModePlaybook
	default:
		return domain.MethodModeOther
	}
}

func ptr[T any](v T) *T {
	return &v
}
