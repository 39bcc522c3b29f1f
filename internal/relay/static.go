package relay

import (
	"net/http"
)

// staticHandler serves files below dir for GET and HEAD requests.
// http.Dir refuses paths escaping dir.
func staticHandler(dir string) http.Handler {
	var files http.Handler = http.NotFoundHandler()
	if dir != "" {
		files = http.FileServer(http.Dir(dir))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	})
}
