package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// StateSink receives authoritative data. *Tracker implements it.
type StateSink interface {
	ApplySnapshot(states []domain.VehicleState)
	ApplyUpdate(state domain.VehicleState)
	SetRoutes(routes []domain.Route)
}

// APIClient reads the tracker API's observer endpoints.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Vehicles fetches the current snapshot.
func (c *APIClient) Vehicles(ctx context.Context) ([]domain.VehicleState, error) {
	var body struct {
		Vehicles []domain.VehicleState `json:"vehicles"`
	}
	if err := c.getJSON(ctx, "/v1/vehicles", &body); err != nil {
		return nil, err
	}
	return body.Vehicles, nil
}

// Routes fetches the route table.
func (c *APIClient) Routes(ctx context.Context) ([]domain.Route, error) {
	var body struct {
		Routes []domain.Route `json:"routes"`
	}
	if err := c.getJSON(ctx, "/v1/routes", &body); err != nil {
		return nil, err
	}
	return body.Routes, nil
}

// LoadRoutes fetches the route table into sink.
func (c *APIClient) LoadRoutes(ctx context.Context, sink StateSink) error {
	routes, err := c.Routes(ctx)
	if err != nil {
		return err
	}
	sink.SetRoutes(routes)
	return nil
}

// StreamURL returns the websocket address of the push channel.
func (c *APIClient) StreamURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/stream")
	if err != nil {
		return "", fmt.Errorf("stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: http status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
