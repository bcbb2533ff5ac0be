package server

import (
	"context"
	"net/http"

	"tailscale.com/client/tailscale/apitype"

	"github.com/claude/grouplift/internal/mcp"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userInfoKey
)

const (
	devLogin       = "local"
	devDisplayName = "Local Dev User"
	devUserHeader  = "X-Dev-User"
)

// UserInfo is the caller identity as reported by the network layer.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// UserResolver maps a login to a user id, creating the user on first sight.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int64, error)
}

type whoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// userIDFromContext returns the user id set by identity middleware, or 0.
func userIDFromContext(r *http.Request) int64 {
	if id, ok := r.Context().Value(userIDKey).(int64); ok {
		return id
	}
	return 0
}

// userInfoFromContext returns the identity set by middleware, falling back
// to the local dev user.
func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return UserInfo{Login: devLogin, DisplayName: devDisplayName}
}

func withIdentity(r *http.Request, id int64, info UserInfo) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, id)
	ctx = context.WithValue(ctx, userInfoKey, info)
	ctx = mcp.WithUserID(ctx, id)
	return r.WithContext(ctx)
}

// DevIdentity trusts the X-Dev-User header, defaulting to the local dev
// user. Only for use without Tailscale.
func DevIdentity(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := UserInfo{Login: devLogin, DisplayName: devDisplayName}
			if login := r.Header.Get(devUserHeader); login != "" {
				info = UserInfo{Login: login, DisplayName: login}
			}
			id, err := users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving user: " + err.Error()})
				return
			}
			next.ServeHTTP(w, withIdentity(r, id, info))
		})
	}
}

// TailscaleIdentity identifies the caller with a WhoIs lookup on the
// tailnet peer address.
func TailscaleIdentity(ts whoIser, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := ts.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who.UserProfile == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
			id, err := users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving user: " + err.Error()})
				return
			}
			next.ServeHTTP(w, withIdentity(r, id, info))
		})
	}
}
