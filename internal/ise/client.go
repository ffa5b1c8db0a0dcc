// Package ise is a client for the Cisco ISE ERS API, covering the endpoint
// group operations the session manager needs: listing groups, resolving the
// group of an endpoint and reassigning an endpoint to a different group.
package ise

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrEndpointNotFound is returned when ISE has no endpoint record for the
// requested MAC address.
var ErrEndpointNotFound = errors.New("endpoint not found in ise")

const requestTimeout = 30 * time.Second

// Client talks to the ISE ERS API with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an ERS client. baseURL points at the ERS config root,
// e.g. https://ise.example.com:9060/ers/config/
func NewClient(baseURL, username, password string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/") + "/",
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				// ISE ships a self-signed certificate on the ERS port.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		logger: logger,
	}
}

type searchResult struct {
	SearchResult struct {
		Total     int `json:"total"`
		Resources []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"resources"`
		// nextPage is absent on the last page.
		NextPage *struct {
			HRef string `json:"href"`
		} `json:"nextPage"`
	} `json:"SearchResult"`
}

type endpointResult struct {
	ERSEndPoint struct {
		ID      string `json:"id"`
		MAC     string `json:"mac"`
		GroupID string `json:"groupId"`
	} `json:"ERSEndPoint"`
}

type endpointUpdate struct {
	ERSEndPoint endpointUpdateFields `json:"ERSEndPoint"`
}

type endpointUpdateFields struct {
	GroupID string `json:"groupId"`
	// ISE accepts the string form here and the deployed policies depend on
	// the assignment being static.
	StaticGroupAssignment string `json:"staticGroupAssignment"`
}

// GetEndpointGroups returns every endpoint group as an id to name mapping,
// following ERS pagination transparently.
func (c *Client) GetEndpointGroups(ctx context.Context) (map[string]string, error) {
	groups := make(map[string]string)

	url := c.baseURL + "endpointgroup"
	for url != "" {
		var page searchResult
		if err := c.getJSON(ctx, url, &page); err != nil {
			return nil, fmt.Errorf("failed to list endpoint groups: %w", err)
		}

		for _, resource := range page.SearchResult.Resources {
			groups[resource.ID] = resource.Name
		}

		url = ""
		if page.SearchResult.NextPage != nil {
			url = page.SearchResult.NextPage.HRef
		}
	}

	c.logger.Debug("Listed endpoint groups", "count", len(groups))
	return groups, nil
}

// GetEndpointGroupID returns the id of the group the endpoint with the given
// MAC currently belongs to. The MAC is sent to ISE exactly as given; ISE
// resolves endpoint names in any of the common MAC notations.
func (c *Client) GetEndpointGroupID(ctx context.Context, mac string) (string, error) {
	endpoint, err := c.getEndpoint(ctx, mac)
	if err != nil {
		return "", err
	}
	return endpoint.ERSEndPoint.GroupID, nil
}

// UpdateEndpointGroup statically reassigns the endpoint with the given MAC to
// groupID.
func (c *Client) UpdateEndpointGroup(ctx context.Context, mac, groupID string) error {
	endpoint, err := c.getEndpoint(ctx, mac)
	if err != nil {
		return err
	}

	update := endpointUpdate{
		ERSEndPoint: endpointUpdateFields{
			GroupID:               groupID,
			StaticGroupAssignment: "true",
		},
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint update: %w", err)
	}

	url := c.baseURL + "endpoint/" + endpoint.ERSEndPoint.ID
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ise returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("Updated endpoint group", "mac", mac, "group_id", groupID)
	return nil
}

// getEndpoint fetches the full endpoint record by MAC.
func (c *Client) getEndpoint(ctx context.Context, mac string) (*endpointResult, error) {
	url := c.baseURL + "endpoint/name/" + mac

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, mac)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ise returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var endpoint endpointResult
	if err := json.NewDecoder(resp.Body).Decode(&endpoint); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint: %w", err)
	}

	return &endpoint, nil
}

// getJSON performs a GET against url and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ise returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
