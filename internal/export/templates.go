package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var noteTemplate = template.Must(
	template.New("note.html").
		Funcs(template.FuncMap{
			"formatDate": func(t time.Time, layout string) string {
				return t.UTC().Format(layout)
			},
		}).
		ParseFS(templateFS, "templates/note.html"),
)

// TemplateData holds data for note template rendering
type TemplateData struct {
	Title       string
	Author      string
	Version     int64
	UpdatedAt   time.Time
	ContentHTML template.HTML
}

// RenderNoteHTML renders the standalone page for a note.
func RenderNoteHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := noteTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
