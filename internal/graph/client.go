package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const BaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource supplies a bearer token for each request. The auth package
// adapts an azidentity credential to this; tests hand in a literal.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the remote API boundary: token-equipped JSON requests routed
// through the backoff Caller.
type Client struct {
	caller *Caller
	tokens TokenSource
}

func NewClient(caller *Caller, tokens TokenSource) *Client {
	return &Client{caller: caller, tokens: tokens}
}

// Get fetches url and decodes the JSON response into out. Pass nil to
// discard the body.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) Post(ctx context.Context, url string, body any) error {
	return c.doWithBody(ctx, http.MethodPost, url, body)
}

func (c *Client) Patch(ctx context.Context, url string, body any) error {
	return c.doWithBody(ctx, http.MethodPatch, url, body)
}

func (c *Client) Delete(ctx context.Context, url string) error {
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *Client) doWithBody(ctx context.Context, method, url string, body any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	return c.doRaw(ctx, method, url, raw, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	return c.doRaw(ctx, method, url, body, out)
}

func (c *Client) doRaw(ctx context.Context, method, url string, body []byte, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")

	resp, err := c.caller.Call(ctx, method, url, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
