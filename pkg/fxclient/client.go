/**
 * @description
 * This package provides clients for the two upstream exchange-rate providers.
 * The primary provider quotes every currency against the USD pivot; the backup
 * provider quotes arbitrary pairs directly. Both encapsulate authenticated
 * HTTP requests, request construction, and response parsing.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package fxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Provider calls are bounded so a dead upstream never stalls the resolution
// pipeline beyond its own window.
const defaultTimeout = 5 * time.Second

// PrimaryClient talks to the primary live-rate provider, which quotes each
// currency relative to USD.
type PrimaryClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewPrimaryClient creates a new primary provider client.
func NewPrimaryClient(baseURL, apiKey string) *PrimaryClient {
	return &PrimaryClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// usdRateResponse is the primary provider's quote payload.
type usdRateResponse struct {
	Data struct {
		Currency string  `json:"currency"`
		Rate     float64 `json:"rate"`
	} `json:"data"`
}

// ErrorResponse represents an error payload from either provider.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("fx provider error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown fx provider error"
}

// USDRate fetches the USD→currency rate from the primary provider.
func (c *PrimaryClient) USDRate(ctx context.Context, currency string) (float64, error) {
	url := fmt.Sprintf("%s/v1/rates/usd/%s", c.BaseURL, strings.ToUpper(currency))

	body, err := doGet(ctx, c.HTTPClient, url, c.APIKey, "primary")
	if err != nil {
		return 0, err
	}

	var quote usdRateResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return 0, fmt.Errorf("failed to decode primary rate response: %w", err)
	}
	if quote.Data.Rate <= 0 {
		return 0, fmt.Errorf("primary provider returned non-positive rate for %s", currency)
	}
	return quote.Data.Rate, nil
}

// BackupClient talks to the backup provider, which quotes pairs directly.
type BackupClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewBackupClient creates a new backup provider client.
func NewBackupClient(baseURL, apiKey string) *BackupClient {
	return &BackupClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// pairRateResponse is the backup provider's quote payload.
type pairRateResponse struct {
	Data struct {
		From string  `json:"from"`
		To   string  `json:"to"`
		Rate float64 `json:"rate"`
	} `json:"data"`
}

// PairRate fetches the from→to rate from the backup provider.
func (c *BackupClient) PairRate(ctx context.Context, from, to string) (float64, error) {
	url := fmt.Sprintf("%s/v1/pairs/%s-%s", c.BaseURL, strings.ToUpper(from), strings.ToUpper(to))

	body, err := doGet(ctx, c.HTTPClient, url, c.APIKey, "backup")
	if err != nil {
		return 0, err
	}

	var quote pairRateResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return 0, fmt.Errorf("failed to decode backup rate response: %w", err)
	}
	if quote.Data.Rate <= 0 {
		return 0, fmt.Errorf("backup provider returned non-positive rate for %s-%s", from, to)
	}
	return quote.Data.Rate, nil
}

// doGet executes an authenticated GET and returns the raw body on 2xx.
func doGet(ctx context.Context, client *http.Client, url, apiKey, provider string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s rate request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-fx-key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s rate request: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rate response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			log.Printf("level=warn component=fx_client provider=%s status=%d msg=\"non-2xx response (unparsable error body)\"", provider, resp.StatusCode)
			return nil, fmt.Errorf("%s provider returned status %d", provider, resp.StatusCode)
		}
		log.Printf("level=warn component=fx_client provider=%s status=%d detail=%q", provider, resp.StatusCode, firstErrorDetail(errResp))
		return nil, &errResp
	}

	return body, nil
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
