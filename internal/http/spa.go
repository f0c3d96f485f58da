package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"djassa/internal/middleware/security"
)

// spaHandler serves the built frontend. Unknown paths get index.html so the
// client-side router can resolve them.
type spaHandler struct {
	root   string
	files  http.Handler
	assets http.Handler
}

func newSPAHandler(root string) *spaHandler {
	files := http.FileServer(http.Dir(root))
	return &spaHandler{
		root:   root,
		files:  files,
		assets: security.StaticAssetMiddleware(31536000)(files),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		ErrorResponse(http.StatusMethodNotAllowed, "Méthode non autorisée").Write(w)
		return
	}
	if h.root == "" {
		NotFoundError("Interface non disponible").Write(w)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(clean)))
	switch {
	case err == nil && !info.IsDir():
		if strings.HasPrefix(clean, "/assets/") {
			h.assets.ServeHTTP(w, r)
			return
		}
		h.files.ServeHTTP(w, r)
	case err == nil || errors.Is(err, fs.ErrNotExist):
		h.serveIndex(w, r)
	default:
		InternalServerError("Erreur interne du serveur").Write(w)
	}
}

func (h *spaHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		NotFoundError("Interface non disponible").Write(w)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}
