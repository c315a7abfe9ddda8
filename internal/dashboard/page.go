package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/view"
)

//go:embed web/index.html
var webFS embed.FS

func parsePage() (*template.Template, error) {
	t, err := template.ParseFS(webFS, "web/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return t, nil
}

type pageData struct {
	Page          view.Page
	Sandbox       bool
	MinInvestment string
}

// handlePage renders the page shell with an anonymous, zeroed view. The
// session websocket fills in the Pioneer's data.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := pageData{
		Page: view.Build(view.Input{
			Metrics:      domain.ZeroSnapshot(),
			Loading:      true,
			SDKAvailable: true,
		}),
		Sandbox:       s.opts.PiSandbox,
		MinInvestment: domain.MinInvestment.String(),
	}

	var buf bytes.Buffer
	if err := s.page.ExecuteTemplate(&buf, "index", data); err != nil {
		s.logger.Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// stateMessage carries re-rendered page fragments to the page.
type stateMessage struct {
	Type   string `json:"type"`
	Navbar string `json:"navbar"`
	Bands  string `json:"bands"`
}

func (s *Server) renderState(p view.Page) (stateMessage, error) {
	var navbar, bands bytes.Buffer
	if err := s.page.ExecuteTemplate(&navbar, "navbar", p); err != nil {
		return stateMessage{}, fmt.Errorf("render navbar: %w", err)
	}
	if err := s.page.ExecuteTemplate(&bands, "bands", p); err != nil {
		return stateMessage{}, fmt.Errorf("render bands: %w", err)
	}
	return stateMessage{Type: "state", Navbar: navbar.String(), Bands: bands.String()}, nil
}
