// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth builds OAuth2 credentials for the two remote APIs: Zoom
// (server-to-server account_credentials grant) and Microsoft Graph
// (client credentials grant). Token refresh is handled here so the rest
// of the archiver only ever sees authenticated http.Clients.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ZoomTokenURL is Zoom's OAuth token endpoint.
const ZoomTokenURL = "https://zoom.us/oauth/token"

// ZoomConfig holds Zoom server-to-server OAuth app credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to ZoomTokenURL
}

// zoomTokenSource implements the account_credentials grant. The generic
// clientcredentials flow cannot express it: that flow fixes
// grant_type=client_credentials and rejects overrides.
type zoomTokenSource struct {
	ctx context.Context
	cfg ZoomConfig
}

// tokenResponse mirrors the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *zoomTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", s.cfg.AccountID)

	tokenURL := s.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = ZoomTokenURL
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoom token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("zoom token endpoint returned HTTP %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("zoom token response missing access_token")
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		// Refresh a minute early so an in-flight request never carries a
		// token that expires mid-call.
		Expiry: time.Now().Add(time.Duration(tr.ExpiresIn-60) * time.Second),
	}, nil
}

// NewZoomTokenSource returns a cached, auto-refreshing token source for
// the Zoom API.
func NewZoomTokenSource(ctx context.Context, cfg ZoomConfig) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &zoomTokenSource{ctx: ctx, cfg: cfg})
}

// NewGraphClient builds an HTTP client that authenticates against the
// Microsoft Graph API via the client credentials flow. An interactive
// (browser-based) credential can be swapped in by handing the transfer
// layer a different client; nothing downstream triggers a browser.
func NewGraphClient(ctx context.Context, tenantID, clientID, clientSecret string) *http.Client {
	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return creds.Client(ctx)
}
