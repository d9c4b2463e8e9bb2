package sso

import "strings"

// ProviderType represents the SSO protocol family
type ProviderType string

const (
	ProviderTypeSAML   ProviderType = "saml"
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// Well-known provider names used in /auth/{provider}/... routes
const (
	ProviderGoogle = "google"
	ProviderOAuth2 = "oauth2"
	ProviderSAML   = "saml"
)

// ProviderConfig represents one configured identity provider
type ProviderConfig struct {
	Name             string
	Type             ProviderType
	OAuth2Config     *OAuth2Config
	OIDCConfig       *OIDCConfig
	SAMLConfig       *SAMLConfig
	AttributeMapping AttributeMap
}

// OAuth2Config holds generic OAuth2 settings
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// OIDCConfig holds OpenID Connect settings
type OIDCConfig struct {
	ClientID        string
	ClientSecret    string
	IssuerURL       string // Discovery endpoint
	RedirectURL     string
	Scopes          []string
	SkipIssuerCheck bool
}

// SAMLConfig holds SAML 2.0 settings
type SAMLConfig struct {
	IDPIssuer   string
	IDPSSOURL   string
	Certificate string // PEM encoded IdP signing certificate
	EntityID    string // SP entity id and audience
	ACSURL      string
}

// AttributeMap names the claims or SAML attributes that carry each profile field
type AttributeMap struct {
	UserID    string
	Email     string
	FullName  string
	FirstName string
	LastName  string
	AvatarURL string
}

// DefaultAttributeMap matches the standard OIDC claim names
var DefaultAttributeMap = AttributeMap{
	UserID:    "sub",
	Email:     "email",
	FullName:  "name",
	FirstName: "given_name",
	LastName:  "family_name",
	AvatarURL: "picture",
}

// Profile is the verified identity returned after a successful login
type Profile struct {
	Provider   string            `json:"provider"`
	ExternalID string            `json:"externalId"`
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	FullName   string            `json:"fullName"`
	AvatarURL  string            `json:"avatarUrl,omitempty"`
	Attributes map[string]string `json:"-"`
}

// normalize lowercases the email and derives missing name parts
func (p *Profile) normalize() {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.FullName == "" {
		p.FullName = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	if p.FirstName == "" && p.LastName == "" && p.FullName != "" {
		parts := strings.SplitN(p.FullName, " ", 2)
		p.FirstName = parts[0]
		if len(parts) == 2 {
			p.LastName = parts[1]
		}
	}
	if p.FullName == "" {
		p.FullName = p.Email
	}
}

func (m AttributeMap) apply(p *Profile, values map[string]interface{}) {
	p.ExternalID = getStringValue(values, m.UserID)
	p.Email = getStringValue(values, m.Email)
	p.FullName = getStringValue(values, m.FullName)
	p.FirstName = getStringValue(values, m.FirstName)
	p.LastName = getStringValue(values, m.LastName)
	p.AvatarURL = getStringValue(values, m.AvatarURL)
}

func (m AttributeMap) orDefault() AttributeMap {
	if m == (AttributeMap{}) {
		return DefaultAttributeMap
	}
	return m
}

func getStringValue(data map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
