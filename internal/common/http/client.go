// internal/common/http/client.go
package http

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Client is a shared outbound client. Provider calls sit on delivery workers,
// so both dial and total timeouts are kept short.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return NewClientWithConnectTimeout(timeout, 0)
}

// NewClientWithConnectTimeout bounds the TCP dial separately from the whole request.
func NewClientWithConnectTimeout(timeout, connectTimeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
		transport.DialContext = dialer.DialContext
		transport.TLSHandshakeTimeout = timeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// HTTPClient exposes the underlying *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
