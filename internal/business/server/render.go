package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/network"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type page struct {
	Title     string
	AuthURL   string
	CleanURL  string
	CSRFToken string
	Content   template.HTML
}

// htmlRenderer writes the gate and the protected content as complete pages.
type htmlRenderer struct {
	w         http.ResponseWriter
	host      *httpHost
	csrfToken string

	written bool
}

var _ = gate.Renderer(&htmlRenderer{})

func (h *htmlRenderer) RenderGate(_ context.Context, authURL string) error {
	return h.render("gate", page{Title: "Age Verification Required", AuthURL: authURL})
}

// RenderLoading is a no-op: the response is only sent once the request is
// resolved.
func (h *htmlRenderer) RenderLoading(context.Context) error {
	return nil
}

// InjectContent renders the html field of a JSON body, or escapes any other
// body as text.
func (h *htmlRenderer) InjectContent(ctx context.Context, content network.Body) error {
	var fragment struct {
		HTML *string `json:"html"`
	}
	if content.IsJSON() && content.Decode(&fragment) == nil && fragment.HTML != nil {
		return h.RenderContent(ctx, template.HTML(*fragment.HTML)) //nolint:gosec
	}

	return h.RenderContent(ctx, template.HTML(template.HTMLEscapeString(content.String()))) //nolint:gosec
}

func (h *htmlRenderer) RenderContent(_ context.Context, content template.HTML) error {
	return h.render("content", page{Title: "Verified", Content: content, CSRFToken: h.csrfToken})
}

func (h *htmlRenderer) render(name string, p page) error {
	if h.host != nil {
		p.CleanURL = h.host.cleanURL
	}

	noStore(h.w)
	h.w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	h.written = true

	return pages.ExecuteTemplate(h.w, name, p)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
