package application

import (
	"fmt"
	"slices"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

var DefaultBaseDomains = []string{domain.RootDomainName}

// PolicyInput describes one proposed domain import for CheckDomainImport.
type PolicyInput struct {
	SourceDomain      string
	DestinationDomain string
	SourceProvenance  domain.Source
	// Destination is the existing domain occupying DestinationDomain, if any.
	Destination *domain.Domain
	Origin      domain.Origin
	BaseDomains []string
}

func CheckDomainImport(in PolicyInput) error {
	const op = "policy.CheckDomainImport"

	if in.SourceProvenance == domain.SourceSystem {
		switch {
		case in.Origin == domain.OriginGit:
			return denied(op, domain.ErrInvalidDomain, "git based system domain import is not supported")
		case !isBaseDomain(in.BaseDomains, in.SourceDomain):
			return denied(op, domain.ErrInvalidDomain, "system domain import is not supported")
		case !strings.EqualFold(in.SourceDomain, in.DestinationDomain):
			return denied(op, domain.ErrInvalidDomain, "domain name change for a system domain import is not supported")
		}
		return nil
	}

	dest := in.Destination
	if dest == nil || !dest.ContentsLocked() {
		return nil
	}
	destSystem := dest.Source == domain.SourceSystem
	switch {
	case in.Origin == domain.OriginGit && destSystem:
		return denied(op, domain.ErrDomainNotAccessible, "git based system domain import is not supported")
	case in.Origin == domain.OriginArchive || (in.Origin == domain.OriginGit && destSystem):
		return denied(op, domain.ErrDomainNotAccessible, "cannot import into a locked domain")
	}
	return nil
}

func denied(op string, sentinel error, reason string) error {
	return domain.NewImportError(op, domain.KindPolicyDenied, fmt.Errorf("%w: %s", sentinel, reason))
}

func isBaseDomain(base []string, name string) bool {
	return slices.ContainsFunc(base, func(b string) bool { return strings.EqualFold(b, name) })
}
