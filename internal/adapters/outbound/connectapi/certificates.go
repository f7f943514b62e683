package connectapi

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

type certificateAttributes struct {
	Name               string `json:"name,omitempty"`
	DisplayName        string `json:"displayName,omitempty"`
	CertificateType    string `json:"certificateType"`
	SerialNumber       string `json:"serialNumber,omitempty"`
	ExpirationDate     string `json:"expirationDate,omitempty"`
	CertificateContent string `json:"certificateContent,omitempty"`
	CSRContent         string `json:"csrContent,omitempty"`
}

// certificateTypes maps kinds to remote type names. The first entry is used
// when creating; all of them are accepted when listing.
var certificateTypes = map[domain.CertificateKind][]string{
	domain.CertificateDevelopment:  {"IOS_DEVELOPMENT", "DEVELOPMENT"},
	domain.CertificateDistribution: {"IOS_DISTRIBUTION", "DISTRIBUTION"},
}

func certificateKind(remoteType string) (domain.CertificateKind, bool) {
	for k, types := range certificateTypes {
		for _, t := range types {
			if strings.EqualFold(t, remoteType) {
				return k, true
			}
		}
	}
	return "", false
}

// certificate converts a resource. Origin is left as manual; the
// certificate manager classifies it.
func certificate(team domain.TeamID, r resource) (domain.Certificate, []byte, error) {
	attrs, err := decodeAttributes[certificateAttributes](r)
	if err != nil {
		return domain.Certificate{}, nil, err
	}
	kind, ok := certificateKind(attrs.CertificateType)
	if !ok {
		return domain.Certificate{}, nil, fmt.Errorf("certificate %s: unknown type %q", r.ID, attrs.CertificateType)
	}

	var (
		der    []byte
		issued time.Time
	)
	expires := parseTime(attrs.ExpirationDate)
	if attrs.CertificateContent != "" {
		der, err = base64.StdEncoding.DecodeString(attrs.CertificateContent)
		if err != nil {
			return domain.Certificate{}, nil, fmt.Errorf("certificate %s: content: %w", r.ID, err)
		}
		if x, err := x509.ParseCertificate(der); err == nil {
			issued = x.NotBefore
			if expires.IsZero() {
				expires = x.NotAfter
			}
		}
	}

	c, err := domain.NewCertificate(r.ID, kind, team, issued, expires, domain.OriginManual)
	if err != nil {
		return domain.Certificate{}, nil, err
	}
	c.Name = attrs.DisplayName
	if c.Name == "" {
		c.Name = attrs.Name
	}
	return c, der, nil
}

func (c *Client) ListCertificates(ctx context.Context, team domain.TeamID, kind domain.CertificateKind) ([]domain.Certificate, error) {
	types, ok := certificateTypes[kind]
	if !ok {
		return nil, kind.Validate()
	}
	q := url.Values{}
	q.Set("filter[certificateType]", strings.Join(types, ","))
	q.Set("limit", "200")
	data, _, err := c.list(ctx, "/v1/certificates", q)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Certificate, 0, len(data))
	for _, r := range data {
		cert, _, err := certificate(team, r)
		if err != nil {
			c.logger.Warn("skipping certificate", "id", r.ID, "error", err)
			continue
		}
		out = append(out, cert)
	}
	return out, nil
}

func (c *Client) CreateCertificate(ctx context.Context, team domain.TeamID, kind domain.CertificateKind, csrPEM []byte) (ports.IssuedCertificate, error) {
	types, ok := certificateTypes[kind]
	if !ok {
		return ports.IssuedCertificate{}, kind.Validate()
	}
	doc, err := c.create(ctx, "/v1/certificates", newResource{
		Type: "certificates",
		Attributes: certificateAttributes{
			CertificateType: types[0],
			CSRContent:      string(csrPEM),
		},
	})
	if err != nil {
		return ports.IssuedCertificate{}, err
	}
	cert, der, err := certificate(team, doc.Data)
	if err != nil {
		return ports.IssuedCertificate{}, err
	}
	if len(der) == 0 {
		return ports.IssuedCertificate{}, fmt.Errorf("certificate %s: %w: no content", cert.ID, errUnexpected)
	}
	return ports.IssuedCertificate{Certificate: cert.WithOrigin(domain.OriginAPICreated), DER: der}, nil
}

func (c *Client) RevokeCertificate(ctx context.Context, team domain.TeamID, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("/v1/certificates/"+url.PathEscape(id), nil), nil, nil)
}
