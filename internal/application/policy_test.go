package application

import (
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDomainImport(t *testing.T) {
	systemDest := &domain.Domain{Name: "ManageIQ", Source: domain.SourceSystem}
	lockedDest := &domain.Domain{Name: "Customer", Source: domain.SourceUserLocked}
	userDest := &domain.Domain{Name: "Customer", Source: domain.SourceUser}

	tests := []struct {
		name    string
		in      PolicyInput
		wantErr error
	}{
		{
			name:    "system domain from git",
			in:      PolicyInput{SourceDomain: "ManageIQ", DestinationDomain: "ManageIQ", SourceProvenance: domain.SourceSystem, Origin: domain.OriginGit},
			wantErr: domain.ErrInvalidDomain,
		},
		{
			name:    "system domain that is not a base domain",
			in:      PolicyInput{SourceDomain: "Vendor", DestinationDomain: "Vendor", SourceProvenance: domain.SourceSystem, Origin: domain.OriginFilesystem},
			wantErr: domain.ErrInvalidDomain,
		},
		{
			name:    "system domain renamed",
			in:      PolicyInput{SourceDomain: "ManageIQ", DestinationDomain: "Mine", SourceProvenance: domain.SourceSystem, Origin: domain.OriginFilesystem},
			wantErr: domain.ErrInvalidDomain,
		},
		{
			name: "system base domain from filesystem",
			in:   PolicyInput{SourceDomain: "ManageIQ", DestinationDomain: "ManageIQ", SourceProvenance: domain.SourceSystem, Origin: domain.OriginFilesystem, Destination: systemDest},
		},
		{
			name:    "git into locked system destination",
			in:      PolicyInput{SourceDomain: "Customer", DestinationDomain: "ManageIQ", SourceProvenance: domain.SourceUser, Origin: domain.OriginGit, Destination: systemDest},
			wantErr: domain.ErrDomainNotAccessible,
		},
		{
			name:    "archive into locked destination",
			in:      PolicyInput{SourceDomain: "Customer", DestinationDomain: "Customer", SourceProvenance: domain.SourceUser, Origin: domain.OriginArchive, Destination: lockedDest},
			wantErr: domain.ErrDomainNotAccessible,
		},
		{
			name: "git into locked user destination",
			in:   PolicyInput{SourceDomain: "Customer", DestinationDomain: "Customer", SourceProvenance: domain.SourceUser, Origin: domain.OriginGit, Destination: lockedDest},
		},
		{
			name: "filesystem into locked destination",
			in:   PolicyInput{SourceDomain: "Customer", DestinationDomain: "Customer", SourceProvenance: domain.SourceUser, Origin: domain.OriginFilesystem, Destination: lockedDest},
		},
		{
			name: "archive into unlocked destination",
			in:   PolicyInput{SourceDomain: "Customer", DestinationDomain: "Customer", SourceProvenance: domain.SourceUser, Origin: domain.OriginArchive, Destination: userDest},
		},
		{
			name: "new domain",
			in:   PolicyInput{SourceDomain: "Customer", DestinationDomain: "Customer", Origin: domain.OriginArchive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.BaseDomains = DefaultBaseDomains
			err := CheckDomainImport(tt.in)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.KindPolicyDenied, domain.KindOf(err))
		})
	}
}
