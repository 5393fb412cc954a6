package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Server is the read-only HTTP viewer for trend reports.
type Server struct {
	db      *database.DB
	reports *report.Builder
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server showing windows of lookbackDays.
func New(db *database.DB, lookbackDays int) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatPeriod": dates.FormatPeriodDisplay,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "app.html", "day.html", "taxonomy.html"}
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

	s := &Server{
		db:      db,
		reports: report.NewBuilder(db, lookbackDays),
		pages:   pages,
		mux:     http.NewServeMux(),
	}
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
	s.mux.HandleFunc("/app/", s.handleApp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apps, err := s.db.ListApps()
	if err != nil {
		logging.Errorf("listing apps: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	runs, _ := s.db.GetRecentRuns(10)

	s.render(w, "index.html", map[string]any{
		"Apps": apps,
		"Runs": runs,
	})
}

// handleApp dispatches /app/<id>, /app/<id>/taxonomy and /app/<id>/day/<date>.
func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/app/"), "/")
	parts := strings.Split(path, "/")
	appID := parts[0]
	if appID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	switch {
	case len(parts) == 1:
		s.handleReport(w, r, appID)
	case len(parts) == 2 && parts[1] == "taxonomy":
		s.handleTaxonomy(w, appID)
	case len(parts) == 3 && parts[1] == "day":
		s.handleDay(w, r, appID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, appID string) {
	target := r.URL.Query().Get("date")
	if target == "" {
		last, err := s.db.GetLastTargetDate(appID)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		target = last
	}
	if target == "" {
		target = dates.FormatDate(dates.Today())
	}

	day, err := dates.ParseDate(target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.reports.Build(appID, day)
	if err != nil {
		logging.Errorf("building report for %s: %v", appID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"AppID":  appID,
		"Name":   s.appName(appID),
		"Target": target,
		"Report": rep,
	}
	if rep != nil {
		data["Period"] = dates.MakePeriodID(rep.Dates[0], rep.Dates[len(rep.Dates)-1])
		data["Markdown"] = rep.Markdown()
		data["Dates"] = rep.Dates
	}
	s.render(w, "app.html", data)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request, appID, date string) {
	if _, err := dates.ParseDate(date); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detailed, err := s.db.GetDetailedBatch(appID, date)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if detailed == nil {
		http.NotFound(w, r)
		return
	}

	type topicView struct {
		ID   string
		Data database.TopicReviews
	}
	topics := make([]topicView, 0, len(detailed.Topics))
	for id, t := range detailed.Topics {
		topics = append(topics, topicView{ID: id, Data: t})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Data.Count != topics[j].Data.Count {
			return topics[i].Data.Count > topics[j].Data.Count
		}
		return topics[i].ID < topics[j].ID
	})

	unmapped := make([]string, 0, len(detailed.UnmappedTopics))
	for phrase := range detailed.UnmappedTopics {
		unmapped = append(unmapped, phrase)
	}
	sort.Strings(unmapped)

	s.render(w, "day.html", map[string]any{
		"AppID":    appID,
		"Name":     s.appName(appID),
		"Batch":    detailed,
		"Topics":   topics,
		"Unmapped": unmapped,
	})
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, appID string) {
	tax, err := s.db.GetTaxonomy(appID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "taxonomy.html", map[string]any{
		"AppID":    appID,
		"Name":     s.appName(appID),
		"Taxonomy": tax,
	})
}

func (s *Server) appName(appID string) string {
	info, err := s.db.GetAppInfo(appID)
	if err != nil || info == nil {
		return appID
	}
	return info.DisplayName
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		logging.Errorf("template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		logging.Errorf("rendering template %s: %v", name, err)
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
func Serve(db *database.DB, port, lookbackDays int) error {
	srv, err := New(db, lookbackDays)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logging.Infof("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
