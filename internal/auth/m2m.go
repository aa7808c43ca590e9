package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

// M2MTokenSource hands out client-credentials tokens, reusing a cached one
// while it is still fresh.
type M2MTokenSource struct {
	HTTP         *http.Client
	Cache        *RedisTokenCache
	TokenURL     string
	ClientID     string
	ClientSecret string
	Logger       *logger.Logger
}

func (s *M2MTokenSource) Token(ctx context.Context) (string, error) {
	if s.Cache != nil {
		cached, err := s.Cache.GetToken(ctx, s.ClientID)
		if err != nil {
			s.Logger.Warn("AUTH", fmt.Sprintf("Token cache unavailable: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	resp, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	if s.Cache != nil {
		if err := s.Cache.SetToken(ctx, s.ClientID, resp.AccessToken, resp.ExpiresIn); err != nil {
			s.Logger.Warn("AUTH", fmt.Sprintf("Failed to cache M2M token: %v", err))
		}
	}
	return resp.AccessToken, nil
}

func (s *M2MTokenSource) fetch(ctx context.Context) (*models.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.ClientID)
	data.Set("client_secret", s.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s.Logger.Debug("AUTH", fmt.Sprintf("Requesting M2M token from %s for client %s", s.TokenURL, s.ClientID))
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("failed to get token, status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var tokenResp models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	return &tokenResp, nil
}
