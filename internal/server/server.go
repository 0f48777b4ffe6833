package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"closetpicks/internal/config"
	"closetpicks/internal/model"
	"closetpicks/internal/report"
	"closetpicks/internal/store"
	"closetpicks/internal/validate"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the local viewer over the snapshot files. Snapshots are
// re-read per request so a pipeline run in another terminal shows up
// on refresh.
type Server struct {
	cfg   *config.Config
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server reading snapshots from cfg's data directory.
func New(cfg *config.Config) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefInt": func(n *int) string {
			if n == nil {
				return ""
			}
			return fmt.Sprintf("%d", *n)
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "guest.html", "films.html", "report.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{cfg: cfg, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/guest/", s.handleGuest)
	s.mux.HandleFunc("/films", s.handleFilms)
	s.mux.HandleFunc("/report", s.handleReport)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	guestList, err := store.Load[model.Guest](s.cfg.GuestsFile())
	if err != nil {
		s.internalError(w, err)
		return
	}
	picks, err := store.Load[model.Pick](s.cfg.PicksFile())
	if err != nil {
		s.internalError(w, err)
		return
	}

	sort.Slice(guestList, func(i, j int) bool { return guestList[i].Name < guestList[j].Name })

	withQuote := 0
	for _, p := range picks {
		if p.Quote != "" {
			withQuote++
		}
	}

	s.render(w, "index.html", map[string]any{
		"Guests":     guestList,
		"PickCount":  len(picks),
		"QuoteCount": withQuote,
	})
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/guest/")
	if slug == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	guestList, err := store.Load[model.Guest](s.cfg.GuestsFile())
	if err != nil {
		s.internalError(w, err)
		return
	}
	var guest *model.Guest
	for i := range guestList {
		if guestList[i].Slug == slug {
			guest = &guestList[i]
			break
		}
	}
	if guest == nil {
		http.NotFound(w, r)
		return
	}

	picks, err := store.Load[model.Pick](s.cfg.PicksFile())
	if err != nil {
		s.internalError(w, err)
		return
	}
	var own []model.Pick
	for _, p := range picks {
		if p.GuestSlug == slug {
			own = append(own, p)
		}
	}
	sort.Slice(own, func(i, j int) bool {
		if own[i].VisitIndex != own[j].VisitIndex {
			return own[i].VisitIndex < own[j].VisitIndex
		}
		return own[i].FilmTitle < own[j].FilmTitle
	})

	s.render(w, "guest.html", map[string]any{
		"Guest": guest,
		"Picks": own,
	})
}

func (s *Server) handleFilms(w http.ResponseWriter, r *http.Request) {
	catalog, err := store.Load[model.Film](s.cfg.CatalogFile())
	if err != nil {
		s.internalError(w, err)
		return
	}

	// Spined entries first in spine order, then synthetic entries by title.
	sort.Slice(catalog, func(i, j int) bool {
		a, b := catalog[i].SpineNumber, catalog[j].SpineNumber
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return catalog[i].Title < catalog[j].Title
		}
	})

	s.render(w, "films.html", map[string]any{
		"Films": catalog,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	catalog, err := store.Load[model.Film](s.cfg.CatalogFile())
	if err != nil {
		s.internalError(w, err)
		return
	}
	guestList, err := store.Load[model.Guest](s.cfg.GuestsFile())
	if err != nil {
		s.internalError(w, err)
		return
	}
	picks, err := store.Load[model.Pick](s.cfg.PicksFile())
	if err != nil {
		s.internalError(w, err)
		return
	}

	rep := validate.Run(catalog, guestList, picks)

	s.render(w, "report.html", map[string]any{
		"Markdown": report.Validation(rep),
		"Clean":    rep.Clean(),
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	log.Printf("Error loading snapshots: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(cfg *config.Config, port int) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
