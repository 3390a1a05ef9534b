package boardweb

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	pageLayout      = "layout.html"
	fragmentBoard   = "board_table.html"
	htmlContentType = "text/html; charset=utf-8"
)

var templateFuncs = template.FuncMap{
	// "UPTOWN" -> "Uptown"
	"label": func(s string) string {
		if s == "" {
			return s
		}
		return s[:1] + strings.ToLower(s[1:])
	},
}

// Renderer executes the embedded page templates.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("boardweb").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse board templates: %w", err)
	}
	for _, name := range []string{pageLayout, fragmentBoard} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("board template %q missing", name)
		}
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Write renders name in full before sending it, so a template error turns
// into a clean 500 instead of a truncated page.
func (renderer *Renderer) Write(writer http.ResponseWriter, name string, data any) {
	var page bytes.Buffer
	if err := renderer.tmpl.ExecuteTemplate(&page, name, data); err != nil {
		http.Error(writer, fmt.Sprintf("render %s: %v", name, err), http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", htmlContentType)
	_, _ = page.WriteTo(writer)
}
