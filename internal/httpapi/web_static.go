package httpapi

import (
	"io/fs"
	"net/http"
	"os"
)

// Layout of the web directory.
const (
	webTemplatesDir = "templates"
	webResourcesDir = "resources"

	examPage     = "exam.html"
	uploadPage   = "upload.html"
	registerPage = "register.html"
)

// registerWebRoutes serves the frontend pages and resources from dir. The
// /api/ prefix is never answered from the web directory.
func (h *Handler) registerWebRoutes(mux *http.ServeMux, dir string) {
	webFS := os.DirFS(dir)
	templates, err := fs.Sub(webFS, webTemplatesDir)
	if err != nil {
		h.logger.Error("invalid web directory", "dir", dir, "error", err)
		return
	}
	resources, err := fs.Sub(webFS, webResourcesDir)
	if err != nil {
		h.logger.Error("invalid web directory", "dir", dir, "error", err)
		return
	}

	page := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, templates, name)
		}
	}

	mux.HandleFunc("GET /{$}", page(examPage))
	mux.HandleFunc("GET /{test_id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("test_id") == "api" {
			http.NotFound(w, r)
			return
		}
		page(examPage)(w, r)
	})
	if !h.quizzes.SelfHosted() {
		mux.HandleFunc("GET /upload", page(uploadPage))
		mux.HandleFunc("GET /register", page(registerPage))
	}
	mux.Handle("GET /resources/", http.StripPrefix("/resources/", http.FileServerFS(resources)))
}
