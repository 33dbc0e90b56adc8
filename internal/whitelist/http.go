package whitelist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HTTPClient is the production Client implementation against the whitelist
// service's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logrus.Entry
}

// NewHTTPClient builds a client for the whitelist service at baseURL,
// authenticating with a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     logrus.WithField("component", "whitelist"),
	}
}

// Ping verifies the service is reachable at startup, retrying with
// exponential backoff. Grant and retract calls themselves are never
// retried here; that is the operator's call.
func (c *HTTPClient) Ping(ctx context.Context) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Warnf("whitelist service not reachable yet: %v", err)
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

type grantRequest struct {
	SteamID   string `json:"steam_id"`
	Minutes   int64  `json:"minutes"`
	SourceTag string `json:"source_tag"`
}

type grantResponse struct {
	GrantID string `json:"grant_id"`
	Error   string `json:"error,omitempty"`
}

// Grant issues a whitelist extension. The Idempotency-Key header lets the
// service deduplicate a request that succeeded but whose response was lost.
func (c *HTTPClient) Grant(ctx context.Context, steamID string, minutes int64, sourceTag string) (string, error) {
	body, err := json.Marshal(grantRequest{SteamID: steamID, Minutes: minutes, SourceTag: sourceTag})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/whitelist/grants", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whitelist grant: %w", err)
	}
	defer resp.Body.Close()

	var parsed grantResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("whitelist grant: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("whitelist grant: service returned %d: %s", resp.StatusCode, parsed.Error)
	}
	if parsed.GrantID == "" {
		return "", fmt.Errorf("whitelist grant: service returned no grant id")
	}

	c.log.WithFields(logrus.Fields{
		"steam_id": steamID,
		"minutes":  minutes,
		"grant_id": parsed.GrantID,
	}).Info("whitelist extension granted")
	return parsed.GrantID, nil
}

// Retract removes an extension by record id. A 404 is treated as success:
// the grant is already gone, which is the state the caller wants.
func (c *HTTPClient) Retract(ctx context.Context, grantID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/whitelist/grants/"+grantID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whitelist retract: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		c.log.WithField("grant_id", grantID).Info("whitelist extension retracted")
		return nil
	default:
		return fmt.Errorf("whitelist retract: service returned %d", resp.StatusCode)
	}
}
