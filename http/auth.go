package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const ErrTypeUnauthorized = "unauthorized"

// UserToken returns the bearer token of a request. The token query parameter
// is accepted for websocket clients that cannot set headers.
func UserToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer"))
	}
	return r.URL.Query().Get("token")
}

// VerifyAuthToken checks that a request carries the given token. An empty
// token disables the check.
func VerifyAuthToken(token string) func(*http.Request) error {
	return func(r *http.Request) error {
		if token == "" {
			return nil
		}

		if subtle.ConstantTimeCompare([]byte(UserToken(r)), []byte(token)) != 1 {
			return errors.New("invalid auth token").
				WithType(ErrTypeUnauthorized).
				WithTag("path", r.URL.Path).
				WithTag("remote_addr", r.RemoteAddr)
		}
		return nil
	}
}

func VerifyAuthTokenHandler(token string, next http.Handler) http.Handler {
	verify := VerifyAuthToken(token)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verify(r); err != nil {
			logs.Warn(err)
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
