// Package portal talks to the catalogue backend: authentication tokens,
// account lookup, country and layer metadata, and saved dashboard widgets.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/core/observability"
)

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Token exchanges credentials for a bearer token.
func (c *Client) Token(ctx context.Context, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/token/", "", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("portal: token response missing access field")
	}
	return out.Access, nil
}

// Account describes the authenticated user.
type Account struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CountryID int    `json:"country_id"`
}

func (c *Client) Account(ctx context.Context, token string) (Account, error) {
	var out Account
	err := c.do(ctx, http.MethodGet, "/account/", token, nil, &out)
	return out, err
}

// Country is one portal country entry with its default map framing.
type Country struct {
	ID        int     `json:"id"`
	Code      string  `json:"short_name"`
	Name      string  `json:"long_name"`
	CenterLat float64 `json:"latitude"`
	CenterLng float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
}

func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	var out []Country
	err := c.do(ctx, http.MethodGet, "/country/", "", nil, &out)
	return out, err
}

// Layer fetches one catalogue layer definition by id. The response feeds
// straight into a layer descriptor; the rendering kind is derived here so
// callers always see a fully-formed descriptor.
func (c *Client) Layer(ctx context.Context, id string) (model.LayerDescriptor, error) {
	var d model.LayerDescriptor
	if err := c.do(ctx, http.MethodGet, "/layer/"+url.PathEscape(id)+"/", "", nil, &d); err != nil {
		return model.LayerDescriptor{}, err
	}
	d.Kind = model.KindOf(d.RawType, d.EnableCOG)
	return d, nil
}

// Widget is a saved dashboard tile.
type Widget struct {
	ID        int             `json:"id"`
	Title     string          `json:"title"`
	Kind      string          `json:"widget_type"`
	CountryID int             `json:"country_id"`
	Config    json.RawMessage `json:"config"`
}

// Widgets lists dashboard widgets, optionally scoped to one country.
func (c *Client) Widgets(ctx context.Context, token string, countryID int) ([]Widget, error) {
	path := "/widget/"
	if countryID > 0 {
		path += "?country_id=" + strconv.Itoa(countryID)
	}
	var out []Widget
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("portal", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("portal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("portal: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("portal: %s %s: decode: %w", method, path, err)
	}
	return nil
}
