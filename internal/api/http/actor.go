package httpapi

import (
	"net/http"
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/identity"
)

// ActorHeader carries the caller's user id.
const ActorHeader = "X-Actor-ID"

// requireActor rejects requests without a store-addressable actor id. Local
// placeholder identities never reach the server.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+ActorHeader)
			return
		}
		if !identity.IsRemoteID(actor) {
			respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "actor id is not a registered identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
	})
}

func actorFromRequest(r *http.Request) string {
	actor, err := identity.FromContext{}.CurrentActor(r.Context())
	if err != nil {
		return ""
	}
	return actor
}
