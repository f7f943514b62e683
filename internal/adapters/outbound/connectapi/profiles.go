package connectapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

type profileAttributes struct {
	Name           string `json:"name"`
	ProfileType    string `json:"profileType"`
	ProfileState   string `json:"profileState,omitempty"`
	UUID           string `json:"uuid,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	ProfileContent string `json:"profileContent,omitempty"`
}

type bundleIDAttributes struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

var profileTypes = map[domain.ProfileKind]string{
	domain.ProfileDevelopment: "IOS_APP_DEVELOPMENT",
	domain.ProfileAdHoc:       "IOS_APP_ADHOC",
	domain.ProfileAppStore:    "IOS_APP_STORE",
}

func profileKind(remoteType string) (domain.ProfileKind, bool) {
	for k, t := range profileTypes {
		if strings.EqualFold(t, remoteType) {
			return k, true
		}
	}
	return "", false
}

func (c *Client) profile(team domain.TeamID, r resource, included []resource) (domain.ProvisioningProfile, error) {
	attrs, err := decodeAttributes[profileAttributes](r)
	if err != nil {
		return domain.ProvisioningProfile{}, err
	}
	kind, ok := profileKind(attrs.ProfileType)
	if !ok {
		return domain.ProvisioningProfile{}, fmt.Errorf("profile %s: unsupported type %q", r.ID, attrs.ProfileType)
	}

	var app domain.AppIdentifier
	if ids := r.Relationships["bundleId"].ids(); len(ids) == 1 {
		if b, ok := findIncluded(included, "bundleIds", ids[0]); ok {
			ba, err := decodeAttributes[bundleIDAttributes](b)
			if err != nil {
				return domain.ProvisioningProfile{}, err
			}
			if app, err = domain.ParseProfileAppIdentifier(team, ba.Identifier); err != nil {
				return domain.ProvisioningProfile{}, err
			}
		}
	}
	if app.IsZero() {
		return domain.ProvisioningProfile{}, fmt.Errorf("profile %s: %w: no bundle identifier", r.ID, errUnexpected)
	}

	var content []byte
	if attrs.ProfileContent != "" {
		if content, err = base64.StdEncoding.DecodeString(attrs.ProfileContent); err != nil {
			return domain.ProvisioningProfile{}, fmt.Errorf("profile %s: content: %w", r.ID, err)
		}
	}

	return domain.NewProvisioningProfile(domain.ProvisioningProfile{
		ID:             r.ID,
		UUID:           attrs.UUID,
		Name:           attrs.Name,
		Kind:           kind,
		AppIdentifier:  app,
		TeamID:         team,
		ExpiresAt:      parseTime(attrs.ExpirationDate),
		CertificateIDs: r.Relationships["certificates"].ids(),
		DeviceIDs:      r.Relationships["devices"].ids(),
		Content:        content,
	})
}

// ListProfiles returns active profiles with their bundle identifier,
// certificates and devices resolved.
func (c *Client) ListProfiles(ctx context.Context, team domain.TeamID) ([]domain.ProvisioningProfile, error) {
	q := url.Values{}
	q.Set("filter[profileState]", "ACTIVE")
	q.Set("include", "bundleId,certificates,devices")
	q.Set("limit", "200")
	data, included, err := c.list(ctx, "/v1/profiles", q)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProvisioningProfile, 0, len(data))
	for _, r := range data {
		p, err := c.profile(team, r, included)
		if err != nil {
			c.logger.Warn("skipping profile", "id", r.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) CreateProfile(ctx context.Context, req ports.ProfileRequest) (domain.ProvisioningProfile, error) {
	typ, ok := profileTypes[req.Kind]
	if !ok {
		return domain.ProvisioningProfile{}, req.Kind.Validate()
	}
	bundle, err := c.bundleID(ctx, req.AppIdentifier)
	if err != nil {
		return domain.ProvisioningProfile{}, err
	}

	rels := map[string]any{
		"bundleId":     toOne("bundleIds", bundle.ID),
		"certificates": toMany("certificates", req.CertificateIDs),
	}
	if len(req.DeviceIDs) > 0 {
		rels["devices"] = toMany("devices", req.DeviceIDs)
	}
	doc, err := c.create(ctx, "/v1/profiles", newResource{
		Type:          "profiles",
		Attributes:    profileAttributes{Name: req.Name, ProfileType: typ},
		Relationships: rels,
	})
	if err != nil {
		return domain.ProvisioningProfile{}, err
	}

	// the create response omits linkage data; the request is authoritative
	r := doc.Data
	r.Relationships = map[string]relationship{
		"bundleId":     relationshipTo("bundleIds", bundle.ID),
		"certificates": relationshipTo("certificates", req.CertificateIDs...),
		"devices":      relationshipTo("devices", req.DeviceIDs...),
	}
	return c.profile(req.TeamID, r, []resource{bundle})
}

func relationshipTo(typ string, ids ...string) relationship {
	data := make([]linkage, 0, len(ids))
	for _, id := range ids {
		data = append(data, linkage{Type: typ, ID: id})
	}
	raw, _ := json.Marshal(data)
	return relationship{Data: raw}
}

// bundleID finds the registered bundle identifier resource for app.
func (c *Client) bundleID(ctx context.Context, app domain.AppIdentifier) (resource, error) {
	q := url.Values{}
	q.Set("filter[identifier]", app.String())
	data, _, err := c.list(ctx, "/v1/bundleIds", q)
	if err != nil {
		return resource{}, err
	}
	// the filter is a prefix match
	for _, r := range data {
		attrs, err := decodeAttributes[bundleIDAttributes](r)
		if err == nil && attrs.Identifier == app.String() {
			return r, nil
		}
	}
	return resource{}, fmt.Errorf("bundle identifier %s: %w", app, ports.ErrNotFound)
}

func (c *Client) EnsureAppIdentifier(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) error {
	_, err := c.bundleID(ctx, app)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	name := strings.ReplaceAll(strings.TrimSuffix(app.String(), ".*"), ".", " ")
	_, err = c.create(ctx, "/v1/bundleIds", newResource{
		Type:       "bundleIds",
		Attributes: bundleIDAttributes{Identifier: app.String(), Name: "signet " + name, Platform: "IOS"},
	})
	if isConflict(err) {
		// registered concurrently
		return nil
	}
	return err
}

func (c *Client) ListDevices(ctx context.Context, team domain.TeamID) ([]string, error) {
	q := url.Values{}
	q.Set("filter[status]", "ENABLED")
	q.Set("fields[devices]", "udid")
	q.Set("limit", "200")
	data, _, err := c.list(ctx, "/v1/devices", q)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data))
	for _, r := range data {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
