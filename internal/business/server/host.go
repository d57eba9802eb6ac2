package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/openkcm/age-gate/internal/gate"
)

var ErrForeignOrigin = errors.New("refusing to navigate to a foreign origin")

// httpHost is the gate.Host of a single request. Navigation is answered
// with a redirect, cleared query parameters are applied by the rendered
// page through the history API.
type httpHost struct {
	w      http.ResponseWriter
	r      *http.Request
	origin *url.URL

	navigated bool
	cleanURL  string
}

var _ = gate.Host(&httpHost{})

func newHTTPHost(w http.ResponseWriter, r *http.Request, publicURL string) (*httpHost, error) {
	origin, err := url.Parse(publicURL)
	if err != nil {
		return nil, fmt.Errorf("parsing public url: %w", err)
	}

	return &httpHost{w: w, r: r, origin: origin}, nil
}

func (h *httpHost) CurrentLocation() string {
	u := *h.origin
	u.Path = h.r.URL.Path
	u.RawPath = h.r.URL.RawPath
	u.RawQuery = h.r.URL.RawQuery
	u.Fragment = ""

	return u.String()
}

func (h *httpHost) NavigateTo(rawURL string) error {
	target, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if target.IsAbs() && (target.Scheme != h.origin.Scheme || target.Host != h.origin.Host) {
		return fmt.Errorf("%w: %s", ErrForeignOrigin, target.Host)
	}

	noStore(h.w)
	http.Redirect(h.w, h.r, target.String(), http.StatusFound)
	h.navigated = true

	return nil
}

func (h *httpHost) QueryParams() url.Values {
	return h.r.URL.Query()
}

func (h *httpHost) ClearQueryParams() error {
	h.cleanURL = gate.StripCallbackParams(h.CurrentLocation())
	return nil
}
