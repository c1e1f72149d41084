package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// In a real deployment this would be configurable via flags or env
	// vars; qdrop's own instance is reachable at this endpoint.
	apiEndpoint = "https://k4fa8k5sjg.execute-api.us-east-1.amazonaws.com"
)

// RegistryClient talks to the cloud rendezvous service: a ticket tag to
// candidate-address lookup used when mDNS can't find the peer (see
// cmd/rendezvous-server for the DynamoDB-backed handler).
type RegistryClient struct {
	client *http.Client
}

// NewRegistryClient creates a new client with a default timeout.
func NewRegistryClient() *RegistryClient {
	return &RegistryClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RegistryItem represents the data stored/retrieved from the rendezvous
// service, keyed by a ticket's derived Tag rather than a human code.
type RegistryItem struct {
	Tag        string   `json:"ticket_tag"`
	Candidates []string `json:"candidates"`
}

// Register publishes this endpoint's candidate addresses under tag.
func (c *RegistryClient) Register(tag string, candidates []string) error {
	item := RegistryItem{Tag: tag, Candidates: candidates}

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("discovery: marshal register body: %w", err)
	}

	url := fmt.Sprintf("%s/register", apiEndpoint)
	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("discovery: register request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discovery: register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Lookup fetches the candidate addresses published under tag.
func (c *RegistryClient) Lookup(tag string) (*RegistryItem, error) {
	url := fmt.Sprintf("%s/lookup/%s", apiEndpoint, tag)
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("discovery: lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("discovery: no peer registered under this tag")
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("discovery: lookup failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var item RegistryItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("discovery: decode lookup response: %w", err)
	}
	return &item, nil
}
