// Package ui serves the Lab Router form as a server-rendered page.
package ui

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/labform"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultTitle is the page heading when none is configured.
const DefaultTitle = "Instruqt Lab Router"

// Handler renders the form and submits it through a labform.Resolver.
type Handler struct {
	title       string
	action      string
	resolverFor func(*http.Request) labform.Resolver
	templates   *template.Template
}

// NewHandler builds a handler that submits every form through r.
// action is the form's own URL, e.g. "/router/ui/".
func NewHandler(title, action string, r labform.Resolver) (*Handler, error) {
	return NewRequestHandler(title, action, func(*http.Request) labform.Resolver { return r })
}

// NewRequestHandler builds a handler that asks resolverFor for a resolver on
// each submit, so the outbound call can carry facts about the form request.
func NewRequestHandler(title, action string, resolverFor func(*http.Request) labform.Resolver) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = DefaultTitle
	}
	if !strings.HasSuffix(action, "/") {
		action += "/"
	}
	return &Handler{title: title, action: action, resolverFor: resolverFor, templates: tmpl}, nil
}

// TemplateData is passed to form.html.
type TemplateData struct {
	Title     string
	Action    string
	BusyLabel string
	State     labform.State
}

// Form renders an empty form.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, labform.State{})
}

// Submit runs one submit with the posted token and prompt and renders the
// settled state. The state is discarded once the page is written.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	f := labform.NewForm(h.resolverFor(r), nil)
	f.Dispatch(labform.TokenChanged{Value: r.PostForm.Get("token")})
	f.Dispatch(labform.PromptChanged{Value: r.PostForm.Get("prompt")})
	s := f.Submit(r.Context())

	if s.Error != "" {
		appctx.GetLogger(r.Context()).Info("form submit failed", "error", s.Error)
	}
	h.render(w, r, s)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, s labform.State) {
	data := TemplateData{
		Title:     h.title,
		Action:    h.action,
		BusyLabel: labform.LabelBusy,
		State:     s,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "form.html", data); err != nil {
		appctx.GetLogger(r.Context()).Error("template error", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
