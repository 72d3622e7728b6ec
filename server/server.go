// Package server assembles the HTTP interface to a device.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/qmlab/rsscope/generichttp"
	"github.com/qmlab/rsscope/server/middleware/locker"
)

// Stem normalizes a URL stem to have a leading slash and no trailing one,
// e.g. "lab/scope/" becomes "/lab/scope"
func Stem(s string) string {
	s = strings.Trim(strings.TrimSuffix(s, "*"), "/")
	return "/" + s
}

// BuildMux mounts httper's routes under stem behind a lock, and adds a
// route /endpoints that lists every route as JSON
func BuildMux(stem string, httper generichttp.HTTPer) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(middleware.Recoverer)

	stem = Stem(stem)
	lock := locker.New()
	locker.Inject(httper, lock)

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(stem, r)

	graph := map[string][]string{stem: httper.RT().Endpoints()}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.ReplyWithJSON(w, graph)
	})
	return root
}
