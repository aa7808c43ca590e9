// Package directory resolves agency ids to display names through the
// tenant directory service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

// Unknown is shown when an agency cannot be resolved.
const Unknown = "Unknown"

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Logger  *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, log *logger.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Tokens:  tokens,
		Logger:  log,
	}
}

// AgencyName never fails; any lookup problem yields Unknown.
func (c *Client) AgencyName(ctx context.Context, agencyID string) string {
	agency, err := c.Agency(ctx, agencyID)
	if err != nil {
		c.Logger.Warn("DIRECTORY", fmt.Sprintf("Could not resolve agency %s: %v", agencyID, err))
		return Unknown
	}
	if agency.Name == "" {
		return Unknown
	}
	return agency.Name
}

func (c *Client) Agency(ctx context.Context, agencyID string) (*models.Agency, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("directory not configured")
	}
	if agencyID == "" {
		return nil, fmt.Errorf("empty agency id")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/agencies/"+url.PathEscape(agencyID), nil)
	if err != nil {
		return nil, err
	}
	if c.Tokens != nil {
		token, err := c.Tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("directory token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned %s", resp.Status)
	}
	var agency models.Agency
	if err := json.NewDecoder(resp.Body).Decode(&agency); err != nil {
		return nil, fmt.Errorf("decode agency: %w", err)
	}
	return &agency, nil
}
