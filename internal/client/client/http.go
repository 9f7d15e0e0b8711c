package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/netx"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// HTTPClient talks to the generation service over HTTP. Uploads go through
// the injected transport; Ping uses a plain transport so connectivity checks
// are never cached or queued.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	pinger  *http.Client
}

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeHashtags strips markup from tags and drops the ones left empty.
func SanitizeHashtags(tags []string) []string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strictPolicy.Sanitize(t))
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

// NewHTTPClient builds a client for baseURL. transport may be nil, in which
// case http.DefaultTransport is used for uploads as well.
func NewHTTPClient(baseURL string, transport http.RoundTripper, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: scheme and host required", baseURL)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPClient{
		baseURL: u,
		http:    &http.Client{Transport: transport, Timeout: timeout},
		pinger:  &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone(), Timeout: timeout},
	}, nil
}

// BaseURL returns the upstream origin the client talks to.
func (c *HTTPClient) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *HTTPClient) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

type generateResponse struct {
	Hashtags []string `json:"hashtags"`
	Error    string   `json:"error"`
}

func (c *HTTPClient) Generate(ctx context.Context, in GenerateRequest) ([]string, error) {
	body, contentType, err := encodeMultipart(in)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(common.APIPath), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.RequestIDHeaderName, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
	}

	data, err := netx.ReadAndClose(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", common.ErrNetwork, err)
	}

	if resp.Header.Get(common.QueuedHeaderName) == "1" {
		return nil, ErrQueued
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: status %d: malformed response", common.ErrService, resp.StatusCode)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", common.ErrService, out.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", common.ErrService, resp.StatusCode)
	}

	return SanitizeHashtags(out.Hashtags), nil
}

func encodeMultipart(in GenerateRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", in.FileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(in.Content); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("language", in.Language); err != nil {
		return nil, "", err
	}
	if topic := strings.TrimSpace(in.Topic); topic != "" {
		if err := w.WriteField("topic", topic); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Ping sends HEAD / to the upstream. Any HTTP answer counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint("/"), nil)
	if err != nil {
		return err
	}
	resp, err := c.pinger.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	c.pinger.CloseIdleConnections()
	return nil
}
