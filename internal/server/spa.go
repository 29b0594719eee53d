package server

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// spaFileServer serves a log viewer bundle from webDir. Unknown paths that
// look like page navigations get index.html so client-side routes such as
// /channels/<id> survive a reload. http.Dir rejects path traversal.
func spaFileServer(webDir string) http.Handler {
	root := http.Dir(webDir)
	files := http.FileServer(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)

		if f, err := root.Open(p); err == nil {
			_ = f.Close()
			files.ServeHTTP(w, r)
			return
		}
		if !isNavigation(r, p) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		files.ServeHTTP(w, r2)
	})
}

// isNavigation reports whether r looks like a browser loading a page rather
// than fetching an asset.
func isNavigation(r *http.Request, p string) bool {
	if filepath.Ext(p) != "" {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	accept := strings.ToLower(strings.TrimSpace(r.Header.Get("Accept")))
	return accept == "" || strings.Contains(accept, "text/html")
}
