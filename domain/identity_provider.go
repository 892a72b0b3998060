package domain

// IdentityProvider holds the configuration of an external OAuth2/OIDC identity
// provider used for federated sign-in.
type IdentityProvider struct {
	Name         string   `mapstructure:"name" json:"name"` // e.g. "google"
	ClientID     string   `mapstructure:"client_id" json:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" json:"-"`
	Scopes       []string `mapstructure:"scopes" json:"scopes,omitempty"`
	AuthURL      string   `mapstructure:"auth_url" json:"auth_url,omitempty"`
	TokenURL     string   `mapstructure:"token_url" json:"token_url,omitempty"`
	UserInfoURL  string   `mapstructure:"userinfo_url" json:"userinfo_url,omitempty"`

	// RedirectURL must be a loopback URL registered with the provider,
	// e.g. http://127.0.0.1:8765/callback.
	RedirectURL string `mapstructure:"redirect_url" json:"redirect_url"`
}
