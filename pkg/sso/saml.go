package sso

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLProvider implements SP-initiated SAML 2.0 login over the POST binding
type SAMLProvider struct {
	config *ProviderConfig
	sp     *saml2.SAMLServiceProvider
}

// NewSAMLProvider parses the IdP certificate and builds the service provider
func NewSAMLProvider(config *ProviderConfig) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("SAML config is required")
	}
	cfg := config.SAMLConfig
	if cfg.IDPSSOURL == "" {
		return nil, fmt.Errorf("sso_url is required")
	}

	certBlock, _ := pem.Decode([]byte(cfg.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.IDPSSOURL,
		IdentityProviderIssuer:      cfg.IDPIssuer,
		ServiceProviderIssuer:       cfg.EntityID,
		AssertionConsumerServiceURL: cfg.ACSURL,
		AudienceURI:                 cfg.EntityID,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}

	return &SAMLProvider{config: config, sp: sp}, nil
}

func (p *SAMLProvider) Name() string { return p.config.Name }

func (p *SAMLProvider) Type() ProviderType { return ProviderTypeSAML }

// LoginURL builds the redirect-binding AuthnRequest URL; state travels as RelayState
func (p *SAMLProvider) LoginURL(state string) (string, error) {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// HandleCallback validates the posted SAMLResponse
func (p *SAMLProvider) HandleCallback(r *http.Request) (*Profile, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	encoded := r.FormValue("SAMLResponse")
	if encoded == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := p.sp.RetrieveAssertionInfo(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	values := make(map[string]interface{}, len(info.Values))
	profile := &Profile{Provider: p.config.Name, Attributes: make(map[string]string)}
	for name := range info.Values {
		v := info.Values.Get(name)
		values[name] = v
		profile.Attributes[name] = v
	}

	p.config.AttributeMapping.apply(profile, values)
	if profile.ExternalID == "" {
		profile.ExternalID = info.NameID
	}
	if profile.Email == "" {
		profile.Email = info.NameID
	}
	profile.normalize()

	if profile.Email == "" {
		return nil, fmt.Errorf("missing email in SAML assertion")
	}
	return profile, nil
}
