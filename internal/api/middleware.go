package api

// This file contains the middleware authenticating the external worker
// tier. This is a shared-secret check, not user auth: completion
// webhooks come from our own analysis workers, never from browsers.

import (
	"crypto/subtle"
	"net/http"
)

// WorkerSecretHeader carries the shared secret on inbound webhooks.
const WorkerSecretHeader = "X-Worker-Secret"

// WorkerAuthMiddleware verifies that a webhook call originates from a
// known worker. Requests lacking the correct secret are rejected
// before any registry, buffer, or hub state is touched. An empty
// configured secret rejects everything rather than letting unsigned
// completions through.
func (s *Server) WorkerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.app.Config().Webhook.Secret
		if secret == "" {
			RespondWithError(w, http.StatusUnauthorized, "Webhook secret is not configured")
			return
		}

		provided := r.Header.Get(WorkerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: Invalid worker secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}
