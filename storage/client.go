// Package storage implements the content-addressed storage collaborator:
// uploads through a pinning endpoint and fetches through an ordered list of
// public gateways, with inline data: URIs decoded locally.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 10 * time.Second

// DefaultGateways is the ordered list of public gateways tried for a content
// id until one responds.
var DefaultGateways = []string{
	"https://ipfs.io",
	"https://cloudflare-ipfs.com",
	"https://gateway.pinata.cloud",
}

// Config contains configuration for the storage client.
type Config struct {
	// UploadURL is the POST endpoint content is pinned through. Required for
	// Upload; FetchJSON works without it.
	UploadURL string

	// AuthToken is sent as a bearer token on uploads when set.
	AuthToken string

	// Gateways overrides DefaultGateways.
	Gateways []string

	// Timeout is the per-request HTTP timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client implements agentictrust.Storage.
type Client struct {
	uploadURL  string
	authToken  string
	gateways   []string
	httpClient *http.Client
	log        *zap.Logger
}

// uploadResponse is the pinning endpoint's reply.
type uploadResponse struct {
	CID string `json:"cid"`
}

// NewClient creates a storage client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	gateways := cfg.Gateways
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		uploadURL:  cfg.UploadURL,
		authToken:  cfg.AuthToken,
		gateways:   gateways,
		httpClient: httpClient,
		log:        log,
	}
}

// Upload anchors data under filename and returns its content identifiers.
// An empty filename gets a generated JSON object name.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (*agentictrust.UploadResult, error) {
	if c.uploadURL == "" {
		return nil, agentictrust.NewConfigurationError("storage upload URL is not configured")
	}
	if filename == "" {
		filename = uuid.NewString() + ".json"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, agentictrust.NewNetworkError("storage upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("storage upload returned status %d", resp.StatusCode), nil)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, agentictrust.NewNetworkError("decode storage upload response", err)
	}
	if parsed.CID == "" {
		return nil, agentictrust.NewNetworkError("storage upload response carries no cid", nil)
	}

	return &agentictrust.UploadResult{
		ContentID: parsed.CID,
		URL:       c.gateways[0] + "/ipfs/" + parsed.CID,
		TokenURI:  "ipfs://" + parsed.CID,
	}, nil
}

// FetchJSON retrieves the JSON document behind tokenURI. Inline data: URIs
// are decoded without a network call; ipfs:// URIs and bare content ids are
// tried against the gateway list in order; http(s) URIs are fetched
// directly. Returns (nil, nil) when every source reports the content absent.
func (c *Client) FetchJSON(ctx context.Context, tokenURI string) (json.RawMessage, error) {
	tokenURI = strings.TrimSpace(tokenURI)

	switch {
	case strings.HasPrefix(tokenURI, "data:"):
		return decodeDataURI(tokenURI)
	case strings.HasPrefix(tokenURI, "http://"), strings.HasPrefix(tokenURI, "https://"):
		return c.fetchOne(ctx, tokenURI)
	default:
		cid := strings.TrimPrefix(tokenURI, "ipfs://")
		cid = strings.TrimPrefix(cid, "/ipfs/")
		if cid == "" {
			return nil, agentictrust.NewEncodingError("empty content id")
		}
		return c.fetchFromGateways(ctx, cid)
	}
}

func (c *Client) fetchFromGateways(ctx context.Context, cid string) (json.RawMessage, error) {
	var lastErr error
	notFound := 0

	for _, gateway := range c.gateways {
		url := strings.TrimSuffix(gateway, "/") + "/ipfs/" + cid
		doc, err := c.fetchOne(ctx, url)
		if err == nil {
			if doc == nil {
				notFound++
				continue
			}
			return doc, nil
		}
		c.log.Debug("gateway fetch failed", zap.String("url", url), zap.Error(err))
		lastErr = err
	}

	if lastErr == nil && notFound == len(c.gateways) {
		return nil, nil
	}
	return nil, agentictrust.NewNetworkError(fmt.Sprintf("all %d gateways failed for cid %s", len(c.gateways), cid), lastErr)
}

// fetchOne fetches one URL. Returns (nil, nil) on 404.
func (c *Client) fetchOne(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("fetch %s", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("fetch %s returned status %d", url, resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("read %s body", url), err)
	}
	if !json.Valid(raw) {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("content at %s is not valid JSON", url))
	}
	return json.RawMessage(raw), nil
}

// decodeDataURI decodes an inline data: URI, optionally base64-encoded.
func decodeDataURI(uri string) (json.RawMessage, error) {
	meta, payload, found := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !found {
		return nil, agentictrust.NewEncodingError("data URI has no payload separator")
	}

	var raw []byte
	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, agentictrust.NewEncodingError(fmt.Sprintf("data URI base64 payload: %v", err))
		}
		raw = decoded
	} else {
		raw = []byte(payload)
	}

	if !json.Valid(raw) {
		return nil, agentictrust.NewEncodingError("data URI payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
