package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/models"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// setSessionCookies sets both token cookies to expire with the tokens they carry.
func setSessionCookies(w http.ResponseWriter, tokens models.SessionTokens, now time.Time) {
	http.SetCookie(w, sessionCookie(accessTokenCookie, tokens.AccessToken, cookieMaxAge(tokens.AccessExpiresAt, now)))
	http.SetCookie(w, sessionCookie(refreshTokenCookie, tokens.RefreshToken, cookieMaxAge(tokens.RefreshExpiresAt, now)))
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie(accessTokenCookie, "", -1))
	http.SetCookie(w, sessionCookie(refreshTokenCookie, "", -1))
}

// cookieMaxAge rounds the remaining lifetime up to whole seconds. A token that
// has already expired yields -1 so the browser drops the cookie.
func cookieMaxAge(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return -1
	}
	return int(math.Ceil(remaining.Seconds()))
}

func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
	}
}
