package credfiles

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/sufield/signet/internal/domain"
)

// mobileProvision holds the keys read from a profile's embedded plist.
// The Signet* keys are written by SaveProfile when the remote content is not
// itself a signed profile, so ids survive a round trip through disk.
type mobileProvision struct {
	UUID                  string            `plist:"UUID"`
	Name                  string            `plist:"Name"`
	TeamIdentifier        []string          `plist:"TeamIdentifier"`
	ExpirationDate        time.Time         `plist:"ExpirationDate"`
	ProvisionedDevices    []string          `plist:"ProvisionedDevices,omitempty"`
	DeveloperCertificates [][]byte          `plist:"DeveloperCertificates,omitempty"`
	Entitlements          entitlementsPList `plist:"Entitlements"`

	SignetProfileID      string   `plist:"SignetProfileID,omitempty"`
	SignetKind           string   `plist:"SignetKind,omitempty"`
	SignetCertificateIDs []string `plist:"SignetCertificateIDs,omitempty"`
}

type entitlementsPList struct {
	ApplicationIdentifier string `plist:"application-identifier"`
	GetTaskAllow          bool   `plist:"get-task-allow"`
}

// extractPList finds the XML plist inside a CMS-signed profile.
func extractPList(data []byte) ([]byte, bool) {
	start := bytes.Index(data, []byte("<?xml"))
	end := bytes.LastIndex(data, []byte("</plist>"))
	if start < 0 || end < start {
		return nil, false
	}
	return data[start : end+len("</plist>")], true
}

// ParseProfile decodes a .mobileprovision (signed or plain plist).
func ParseProfile(data []byte) (domain.ProvisioningProfile, error) {
	raw, ok := extractPList(data)
	if !ok {
		return domain.ProvisioningProfile{}, fmt.Errorf("%w: no plist payload", domain.ErrProfileInvalid)
	}
	var mp mobileProvision
	if _, err := plist.Unmarshal(raw, &mp); err != nil {
		return domain.ProvisioningProfile{}, fmt.Errorf("%w: %v", domain.ErrProfileInvalid, err)
	}
	if len(mp.TeamIdentifier) == 0 {
		return domain.ProvisioningProfile{}, fmt.Errorf("%w: no team identifier", domain.ErrProfileInvalid)
	}
	team := domain.TeamID(mp.TeamIdentifier[0])
	app, err := domain.ParseProfileAppIdentifier(team, mp.Entitlements.ApplicationIdentifier)
	if err != nil {
		return domain.ProvisioningProfile{}, err
	}

	kind := domain.ProfileKind(mp.SignetKind)
	if kind == "" {
		switch {
		case len(mp.ProvisionedDevices) == 0:
			kind = domain.ProfileAppStore
		case mp.Entitlements.GetTaskAllow:
			kind = domain.ProfileDevelopment
		default:
			kind = domain.ProfileAdHoc
		}
	}

	certIDs := mp.SignetCertificateIDs
	if len(certIDs) == 0 {
		for _, der := range mp.DeveloperCertificates {
			if c, err := x509.ParseCertificate(der); err == nil {
				certIDs = append(certIDs, strings.ToUpper(c.SerialNumber.Text(16)))
			}
		}
	}

	id := mp.SignetProfileID
	if id == "" {
		id = mp.UUID
	}
	return domain.NewProvisioningProfile(domain.ProvisioningProfile{
		ID:             id,
		UUID:           mp.UUID,
		Name:           mp.Name,
		Kind:           kind,
		AppIdentifier:  app,
		TeamID:         team,
		ExpiresAt:      mp.ExpirationDate,
		CertificateIDs: certIDs,
		DeviceIDs:      mp.ProvisionedDevices,
		Content:        data,
	})
}

// LocalProfiles parses every profile under {team}/profiles. Unreadable files
// are skipped; the remote listing remains the source of truth.
func (f *Files) LocalProfiles(team domain.TeamID) ([]domain.ProvisioningProfile, error) {
	paths, err := f.glob(team, profilesDir, "*.mobileprovision")
	if err != nil {
		return nil, err
	}
	var out []domain.ProvisioningProfile
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		prof, err := ParseProfile(data)
		if err != nil || prof.TeamID != team {
			continue
		}
		out = append(out, prof.WithPath(p))
	}
	return out, nil
}

// SaveProfile writes {team}/profiles/{key}.mobileprovision. Content that is
// not a profile is replaced by a plain plist describing p.
func (f *Files) SaveProfile(team domain.TeamID, p domain.ProvisioningProfile) (string, error) {
	data := p.Content
	if _, ok := extractPList(data); !ok {
		encoded, err := encodeProfile(p)
		if err != nil {
			return "", err
		}
		data = encoded
	}
	if err := f.Init(team); err != nil {
		return "", err
	}
	path := filepath.Join(f.TeamDir(team), profilesDir, p.Key()+".mobileprovision")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("credfiles: write %s: %w", path, err)
	}
	return path, nil
}

func encodeProfile(p domain.ProvisioningProfile) ([]byte, error) {
	mp := mobileProvision{
		UUID:               p.UUID,
		Name:               p.Name,
		TeamIdentifier:     []string{string(p.TeamID)},
		ExpirationDate:     p.ExpiresAt.UTC(),
		ProvisionedDevices: p.DeviceIDs,
		Entitlements: entitlementsPList{
			ApplicationIdentifier: string(p.TeamID) + "." + p.AppIdentifier.String(),
			GetTaskAllow:          p.Kind == domain.ProfileDevelopment,
		},
		SignetProfileID:      p.ID,
		SignetKind:           string(p.Kind),
		SignetCertificateIDs: p.CertificateIDs,
	}
	if mp.UUID == "" {
		mp.UUID = p.ID
	}
	data, err := plist.MarshalIndent(mp, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("credfiles: encode profile %s: %w", p.Key(), err)
	}
	return data, nil
}
