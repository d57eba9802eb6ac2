// Package network executes the provider and content requests of the age gate:
// form encoded POSTs to the token endpoint and bearer authenticated GETs.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const (
	genericErrorMessage = "Network Error"
	maxBodySize         = 10 << 20
)

// Body is a response payload together with its declared content type.
type Body struct {
	ContentType string
	Raw         []byte
}

// IsJSON reports whether the response declared a JSON media type.
func (b Body) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(b.ContentType)
	if err != nil {
		return strings.Contains(b.ContentType, "application/json")
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Decode unmarshals a JSON body into v.
func (b Body) Decode(v any) error {
	if !b.IsJSON() {
		return fmt.Errorf("decoding body: unexpected content type %q", b.ContentType)
	}

	if err := json.Unmarshal(b.Raw, v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}

// Value returns the parsed body: the decoded JSON document for JSON
// responses and the text otherwise.
func (b Body) Value() (any, error) {
	if !b.IsJSON() {
		return string(b.Raw), nil
	}

	var v any
	if err := json.Unmarshal(b.Raw, &v); err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}

	return v, nil
}

func (b Body) String() string {
	return string(b.Raw)
}

// Error is returned for non-2xx responses and for requests that never
// produced a response (Status 0).
type Error struct {
	Status  int
	Message string
	Body    Body
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "request failed: " + e.Message
	}

	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Client struct {
	http *http.Client
}

// NewClient returns a Client executing requests with httpClient,
// or http.DefaultClient when it is nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{http: httpClient}
}

// PostForm sends params form encoded to rawURL.
func (c *Client) PostForm(ctx context.Context, rawURL string, params url.Values) (Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(params.Encode()))
	if err != nil {
		return Body{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// Get fetches rawURL, presenting token as a bearer credential when it is set.
func (c *Client) Get(ctx context.Context, rawURL, token string) (Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Body{}, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (Body, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Body{}, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Body{}, &Error{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	body := Body{
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         raw,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Body{}, &Error{
			Status:  resp.StatusCode,
			Message: errorMessage(body),
			Body:    body,
		}
	}

	return body, nil
}

// errorMessage prefers the OAuth error_description, then error.
func errorMessage(body Body) string {
	if !body.IsJSON() {
		return genericErrorMessage
	}

	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body.Raw, &oauthErr); err != nil {
		return genericErrorMessage
	}

	switch {
	case oauthErr.ErrorDescription != "":
		return oauthErr.ErrorDescription
	case oauthErr.Error != "":
		return oauthErr.Error
	default:
		return genericErrorMessage
	}
}
