package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
)

// BearerToken guards the ops API with a static token. An empty token leaves
// the routes open, which is only accepted outside production.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				utils.WriteError(w, errors.Unauthorized("missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
