// Package ringapi is a thin client for the public NLNOG RING HTTP API.
package ringapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Node is one entry of the nodes/active listing in the API's own format.
type Node struct {
	Hostname    string `json:"hostname"`
	ASN         int    `json:"asn"`
	City        string `json:"city"`
	CountryCode string `json:"countrycode"`
	AliveIPv4   int    `json:"alive_ipv4"`
	AliveIPv6   int    `json:"alive_ipv6"`
	Participant int    `json:"participant"`
}

// Alive reports whether the node answered on both address families.
func (n Node) Alive() bool {
	return n.AliveIPv4 != 0 && n.AliveIPv6 != 0
}

// Participant maps an ID to the company operating the node.
type Participant struct {
	ID      int    `json:"id"`
	Company string `json:"company"`
}

// Client executes requests against the NLNOG RING API.
type Client struct {
	nodesURL        string
	participantsURL string
	httpClient      *http.Client
}

// NewClient constructs a RING API client from the two endpoint URLs.
func NewClient(nodesURL, participantsURL string, timeout time.Duration) (*Client, error) {
	normalizedNodes, err := normalizeURL(nodesURL)
	if err != nil {
		return nil, err
	}

	normalizedParticipants, err := normalizeURL(participantsURL)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		nodesURL:        normalizedNodes,
		participantsURL: normalizedParticipants,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// ActiveNodes fetches the current nodes/active listing.
func (c *Client) ActiveNodes(ctx context.Context) ([]Node, error) {
	req, err := c.newRequest(ctx, c.nodesURL)
	if err != nil {
		return nil, fmt.Errorf("create nodes request: %w", err)
	}

	var payload struct {
		Results struct {
			Nodes []Node `json:"nodes"`
		} `json:"results"`
	}

	if err := c.do(req, &payload); err != nil {
		return nil, err
	}

	return payload.Results.Nodes, nil
}

// Participants fetches the participant list and returns an id -> company map.
func (c *Client) Participants(ctx context.Context) (map[int]string, error) {
	req, err := c.newRequest(ctx, c.participantsURL)
	if err != nil {
		return nil, fmt.Errorf("create participants request: %w", err)
	}

	var payload struct {
		Results struct {
			Participants []Participant `json:"participants"`
		} `json:"results"`
	}

	if err := c.do(req, &payload); err != nil {
		return nil, err
	}

	companies := make(map[int]string, len(payload.Results.Participants))
	for _, p := range payload.Results.Participants {
		companies[p.ID] = p.Company
	}

	return companies, nil
}

func normalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("API URL is required")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid API URL: %s", raw)
	}

	parsed.Fragment = ""

	return strings.TrimSuffix(parsed.String(), "/"), nil
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			host := req.URL.Hostname()
			return fmt.Errorf("execute request: network error contacting %s: %w", host, err)
		}
		if urlErr, ok := err.(*url.Error); ok {
			return fmt.Errorf("execute request: %s", urlErr.Err)
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if len(b) == 0 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
