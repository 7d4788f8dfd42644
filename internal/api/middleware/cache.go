package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// clientCacheMaxAge is how long clients may cache derived-view
// responses. Stats change at most a few times a day.
const clientCacheMaxAge = 6 * time.Hour

// ClientCache sets private cache headers on successful GET responses.
func ClientCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(clientCacheMaxAge.Seconds()))+", private")
			w.Header().Set("Expires", time.Now().Add(clientCacheMaxAge).UTC().Format(http.TimeFormat))
		}
		next.ServeHTTP(w, r)
	})
}
