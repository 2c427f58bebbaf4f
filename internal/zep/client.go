package zep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// Client talks to the ZEP space API. It is stateless aside from
// configuration: construct one and inject it wherever spaces are
// provisioned.
type Client struct {
	cfg        config.ZEPConfig
	httpClient *http.Client
	log        zerolog.Logger

	// sleep is swapped out in tests to observe backoff behavior.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.ZEPConfig) *Client {
	log := logger.Get()
	if cfg.APIKey == "" {
		log.Warn().Msg("ZEP API key not configured, space API calls will fail")
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log:   log,
		sleep: ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// doRequest performs one API call with the retry policy: 429 and 5xx back
// off linearly (base delay x attempt number); network failures retry with
// a flat delay. 429 exhaustion has its own terminal error, 5xx exhaustion
// falls through to ordinary status handling.
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		c.log.Debug().Str("method", method).Str("url", url).Int("attempt", attempt+1).Msg("Calling ZEP API")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt >= c.cfg.MaxRetries {
				return nil, errors.RequestFailedError{Attempts: c.cfg.MaxRetries, Err: lastErr}
			}
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("ZEP request failed, retrying")
			if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt >= c.cfg.MaxRetries {
				return nil, errors.ErrRateLimitExceeded
			}
			wait := c.cfg.RetryDelay * time.Duration(attempt+1)
			c.log.Warn().Dur("wait", wait).Msg("ZEP rate limited, backing off")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 500 && attempt < c.cfg.MaxRetries {
			wait := c.cfg.RetryDelay * time.Duration(attempt+1)
			c.log.Warn().Int("status", resp.StatusCode).Dur("wait", wait).Msg("ZEP server error, backing off")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.APIError{Status: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}
}

type CreateSpaceRequest struct {
	Name        string `json:"name"`
	OwnerEmail  string `json:"owner_email"`
	TemplateID  string `json:"template_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type Space struct {
	SpaceID string `json:"space_id"`
	URL     string `json:"url"`
	Name    string `json:"name,omitempty"`
}

// CreateSpace provisions a new space owned by ownerEmail.
func (c *Client) CreateSpace(ctx context.Context, req CreateSpaceRequest) (*Space, error) {
	c.log.Info().Str("name", req.Name).Str("owner", req.OwnerEmail).Msg("Creating ZEP space")

	if req.TemplateID == "" {
		req.TemplateID = c.cfg.SpaceTemplateID
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/spaces", req)
	if err != nil {
		return nil, err
	}

	var space Space
	if err := json.Unmarshal(body, &space); err != nil {
		return nil, fmt.Errorf("failed to decode space response: %w", err)
	}
	if space.SpaceID == "" || space.URL == "" {
		return nil, fmt.Errorf("space creation response missing space_id or url")
	}

	c.log.Info().Str("space_id", space.SpaceID).Msg("Space created")
	return &space, nil
}

type permissionsRequest struct {
	Owner string   `json:"owner"`
	Staff []string `json:"staff"`
}

// SetPermissions grants the owner full access and every staff email edit
// access on the space.
func (c *Client) SetPermissions(ctx context.Context, spaceID, ownerEmail string, staffEmails []string) error {
	c.log.Info().Str("space_id", spaceID).Int("staff", len(staffEmails)).Msg("Setting ZEP space permissions")

	if staffEmails == nil {
		staffEmails = []string{}
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/spaces/"+spaceID+"/permissions", permissionsRequest{
		Owner: ownerEmail,
		Staff: staffEmails,
	})
	return err
}

func (c *Client) GetSpace(ctx context.Context, spaceID string) (*Space, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/spaces/"+spaceID, nil)
	if err != nil {
		return nil, err
	}

	var space Space
	if err := json.Unmarshal(body, &space); err != nil {
		return nil, fmt.Errorf("failed to decode space response: %w", err)
	}
	return &space, nil
}

func (c *Client) DeleteSpace(ctx context.Context, spaceID string) error {
	c.log.Info().Str("space_id", spaceID).Msg("Deleting ZEP space")
	_, err := c.doRequest(ctx, http.MethodDelete, "/spaces/"+spaceID, nil)
	return err
}
