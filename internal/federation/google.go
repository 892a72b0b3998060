package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/pilab-dev/estate-auth/domain"
	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"
)

var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

const googleRevokeEndpoint = "https://oauth2.googleapis.com/revoke"

// NewGoogleProvider creates a LoopbackProvider for Google sign-in. Auth and
// token URLs in idpConfig override Google's well-known endpoints.
func NewGoogleProvider(idpConfig *domain.IdentityProvider, opts ...LoopbackOption) (*LoopbackProvider, error) {
	if idpConfig == nil {
		return nil, ErrProviderMisconfigured
	}
	if idpConfig.Name == "" {
		idpConfig.Name = "google"
	}

	// Ensure necessary scopes for profile information
	for _, scope := range []string{"openid", "profile", "email"} {
		if !slices.Contains(idpConfig.Scopes, scope) {
			idpConfig.Scopes = append(idpConfig.Scopes, scope)
		}
	}

	endpoint := googleOAuth2.Endpoint
	if idpConfig.AuthURL != "" {
		endpoint.AuthURL = idpConfig.AuthURL
	}
	if idpConfig.TokenURL != "" {
		endpoint.TokenURL = idpConfig.TokenURL
	}

	fetch := func(ctx context.Context, client *http.Client) (*ProviderUser, error) {
		userInfoURL := idpConfig.UserInfoURL
		if userInfoURL == "" {
			userInfoURL = GoogleUserInfoEndpoint
		}
		return FetchGoogleUserInfo(ctx, client, userInfoURL)
	}

	opts = append([]LoopbackOption{WithRevokeURL(googleRevokeEndpoint)}, opts...)
	return NewLoopbackProvider(idpConfig, oauth2.Endpoint(endpoint), fetch, opts...)
}

// FetchGoogleUserInfo reads the OpenID userinfo document with an authenticated client.
func FetchGoogleUserInfo(ctx context.Context, client *http.Client, endpoint string) (*ProviderUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google user info request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info from Google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to fetch user info from Google: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var rawUserInfo struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rawUserInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Google user info: %w", err)
	}

	// TODO: reject unverified emails once the server stops linking accounts by email alone.
	return &ProviderUser{
		UID:         rawUserInfo.Sub,
		Email:       rawUserInfo.Email,
		DisplayName: rawUserInfo.Name,
		PhotoURL:    rawUserInfo.Picture,
	}, nil
}
