package utils

import (
	"context"
	"net/http"

	"bazaar/auth"
	"bazaar/globals"
)

func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

// ActorFromContext rebuilds the caller stored by middleware.Authenticate.
func ActorFromContext(ctx context.Context) auth.Actor {
	userID, _ := ctx.Value(globals.UserIDKey).(string)
	roles, _ := ctx.Value(globals.RoleKey).([]string)
	actor := auth.Actor{UserID: userID}
	for _, r := range roles {
		actor.Roles = append(actor.Roles, auth.Role(r))
	}
	return actor
}

func ActorFromRequest(r *http.Request) auth.Actor {
	return ActorFromContext(r.Context())
}
