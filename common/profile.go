// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrAuthProvider        = errors.New("cannot get management API access token from auth provider")
	ErrProfileRequest      = errors.New("user profile request failed")
	ErrProfileUserNotFound = errors.New("user not found at auth provider")
)

type managementToken struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// UserProfile is the identity record held by the auth provider
type UserProfile struct {
	UserID        string                 `json:"user_id"`
	Name          string                 `json:"name"`
	Nickname      string                 `json:"nickname"`
	Email         string                 `json:"email"`
	EmailVerified bool                   `json:"email_verified"`
	Picture       string                 `json:"picture"`
	UserMetaData  map[string]interface{} `json:"user_metadata"`
}

var (
	profileMu   sync.RWMutex
	profiles    = make(map[string]*UserProfile)
	cachedToken string
	tokenExpiry time.Time
)

// ResetProfiles drops cached profiles and the management token
func ResetProfiles() {
	profileMu.Lock()
	defer profileMu.Unlock()
	profiles = make(map[string]*UserProfile)
	cachedToken = ""
	tokenExpiry = time.Time{}
}

func getToken(ctx context.Context) (string, error) {
	profileMu.RLock()
	token, expiry := cachedToken, tokenExpiry
	profileMu.RUnlock()
	if token != "" && time.Now().Before(expiry) {
		return token, nil
	}

	domain := viper.GetString("auth0.domain")
	clientID := viper.GetString("auth0.client_id")

	subLog := log.With().Str("ClientID", clientID).Str("Domain", domain).Logger()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", viper.GetString("auth0.secret"))
	form.Set("audience", fmt.Sprintf("https://%s/api/v2/", domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("https://%s/oauth/token", domain), strings.NewReader(form.Encode()))
	if err != nil {
		subLog.Error().Err(err).Msg("cannot build management API access token request")
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		subLog.Error().Err(err).Msg("management API access token request failed")
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		subLog.Error().Err(err).Int("StatusCode", resp.StatusCode).Msg("error reading response body")
		return "", ErrAuthProvider
	}

	if resp.StatusCode >= 400 {
		subLog.Error().Int("StatusCode", resp.StatusCode).Bytes("Body", respBody).Msg("management API access token request refused")
		return "", ErrAuthProvider
	}

	mgmt := &managementToken{}
	if err := json.Unmarshal(respBody, mgmt); err != nil {
		subLog.Error().Err(err).Int("StatusCode", resp.StatusCode).Msg("could not decode management API access token")
		return "", ErrAuthProvider
	}

	profileMu.Lock()
	cachedToken = mgmt.AccessToken
	// refresh a minute early so a request never races expiry
	tokenExpiry = time.Now().Add(time.Duration(mgmt.ExpiresIn)*time.Second - time.Minute)
	profileMu.Unlock()

	return mgmt.AccessToken, nil
}

// GetUserProfile returns the profile of userID, requesting it from the auth
// provider the first time it is seen
func GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	profileMu.RLock()
	if u, ok := profiles[userID]; ok {
		profileMu.RUnlock()
		return u, nil
	}
	profileMu.RUnlock()

	token, err := getToken(ctx)
	if err != nil {
		return nil, err
	}

	domain := viper.GetString("auth0.domain")
	subLog := log.With().Str("UserID", userID).Str("Domain", domain).Logger()
	subLog.Info().Msg("requesting user profile from auth provider")

	profileURL := fmt.Sprintf("https://%s/api/v2/users/%s", domain, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		subLog.Error().Err(err).Msg("could not create user profile request")
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		subLog.Error().Err(err).Msg("user profile request failed")
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProfileUserNotFound
	}
	if resp.StatusCode >= 400 {
		subLog.Error().Int("StatusCode", resp.StatusCode).Str("Body", string(respBody)).Msg("user profile request failed")
		return nil, ErrProfileRequest
	}

	profile := &UserProfile{}
	if err := json.Unmarshal(respBody, profile); err != nil {
		subLog.Error().Err(err).Str("Body", string(respBody)).Msg("could not decode user profile")
		return nil, ErrProfileRequest
	}

	profileMu.Lock()
	profiles[userID] = profile
	profileMu.Unlock()

	return profile, nil
}
