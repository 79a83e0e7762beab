package server

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

//go:embed templates/auth_failed.html
var authFailedTemplateHTML string

var authFailedTemplate = template.Must(template.New("auth_failed").Parse(authFailedTemplateHTML))

// AuthFailedPageData is the data for the terminal failure page
type AuthFailedPageData struct {
	Description string
	RetryURL    string
	HomeURL     string
}

func renderAuthFailed(w http.ResponseWriter, status int, data AuthFailedPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := authFailedTemplate.Execute(w, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render failure page", map[string]any{
			"error": err.Error(),
		})
	}
}
