package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/vidtube/backend/internal/auth"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "alice", "password123")

	t.Run("success", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{
			Email:    "ALICE@example.com",
			Password: "password123",
		}))
		resp := decodeEnvelope(t, rec, http.StatusOK)

		var body struct {
			User struct {
				ID       string `json:"_id"`
				Password string `json:"password"`
			} `json:"user"`
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		decodeData(t, resp, &body)
		if body.User.ID != user.ID {
			t.Fatalf("expected user %s got %s", user.ID, body.User.ID)
		}
		if body.User.Password != "" {
			t.Fatal("password hash must not be returned")
		}
		if body.AccessToken == "" || body.RefreshToken == "" {
			t.Fatalf("expected tokens in body: %+v", body)
		}

		cookies := map[string]*http.Cookie{}
		for _, c := range rec.Result().Cookies() {
			cookies[c.Name] = c
		}
		for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
			c, ok := cookies[name]
			if !ok {
				t.Fatalf("expected %s cookie", name)
			}
			if !c.HttpOnly || !c.Secure {
				t.Fatalf("cookie %s must be HttpOnly and Secure", name)
			}
		}
		if age := cookies[accessTokenCookie].MaxAge; age < 1 || age > 60 {
			t.Fatalf("access cookie should expire with the one-minute token, MaxAge=%d", age)
		}
		if age := cookies[refreshTokenCookie].MaxAge; age <= 60 || age > 3600 {
			t.Fatalf("refresh cookie should expire with the one-hour token, MaxAge=%d", age)
		}
		if cookies[refreshTokenCookie].Value != body.RefreshToken {
			t.Fatal("refresh cookie should carry the issued refresh token")
		}
		if !env.sessions.Has(user.ID, body.RefreshToken) {
			t.Fatal("refresh token should be stored for the user")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{
			Email:    "alice@example.com",
			Password: "nope",
		}))
		resp := decodeEnvelope(t, rec, http.StatusUnauthorized)
		if resp.Message != "Password is incorrect" {
			t.Fatalf("unexpected message %q", resp.Message)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Fatal("no cookies expected on failed login")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Email: "alice@example.com"}))
		decodeEnvelope(t, rec, http.StatusBadRequest)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{
			Email:    "ghost@example.com",
			Password: "password123",
		}))
		decodeEnvelope(t, rec, http.StatusNotFound)
	})
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "bob", "password123")

	first, err := env.manager.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := env.manager.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	t.Run("stale token is rejected", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: first.RefreshToken}))
		decodeEnvelope(t, rec, http.StatusUnauthorized)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{}))
		decodeEnvelope(t, rec, http.StatusUnauthorized)
	})

	t.Run("malformed token", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: "not-a-jwt"}))
		decodeEnvelope(t, rec, http.StatusInternalServerError)
	})

	t.Run("cookie token rotates", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", nil)
		req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: second.RefreshToken})
		resp := decodeEnvelope(t, env.do(req), http.StatusOK)

		var tokens struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		decodeData(t, resp, &tokens)
		if tokens.RefreshToken == "" || tokens.RefreshToken == second.RefreshToken {
			t.Fatalf("expected a rotated refresh token, got %q", tokens.RefreshToken)
		}
		if !env.sessions.Has(user.ID, tokens.RefreshToken) {
			t.Fatal("rotated token should be stored")
		}
	})
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "carol", "password123")
	tokens, err := env.manager.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := env.do(authorized(jsonRequest(t, http.MethodPost, "/api/v1/users/logout", nil), tokens.AccessToken))
	decodeEnvelope(t, rec, http.StatusOK)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Fatalf("cookie %s should be expired, MaxAge=%d", c.Name, c.MaxAge)
		}
	}
	if _, err := env.manager.Refresh(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatal("refresh should fail after logout")
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "dave", "password123")
	token := env.accessToken(t, user.ID)

	rec := env.do(authorized(jsonRequest(t, http.MethodPost, "/api/v1/users/change-password", changePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "newpassword",
	}), token))
	decodeEnvelope(t, rec, http.StatusUnauthorized)

	rec = env.do(authorized(jsonRequest(t, http.MethodPost, "/api/v1/users/change-password", changePasswordRequest{
		OldPassword: "password123",
		NewPassword: strings.Repeat("n", 73),
	}), token))
	decodeEnvelope(t, rec, http.StatusBadRequest)

	rec = env.do(authorized(jsonRequest(t, http.MethodPost, "/api/v1/users/change-password", changePasswordRequest{
		CurrentPassword: "password123",
		NewPassword:     "newpassword",
	}), token))
	decodeEnvelope(t, rec, http.StatusOK)

	stored, err := env.users.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !auth.CheckPassword(stored.Password, "newpassword") {
		t.Fatal("password should have been updated")
	}
}

func TestAuthenticatorRequire(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "erin", "password123")

	rec := env.do(jsonRequest(t, http.MethodGet, "/api/v1/users/current-user", nil))
	resp := decodeEnvelope(t, rec, http.StatusUnauthorized)
	if resp.Message != "Unauthorized request" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rec = env.do(authorized(jsonRequest(t, http.MethodGet, "/api/v1/users/current-user", nil), "garbage"))
	decodeEnvelope(t, rec, http.StatusUnauthorized)

	req := jsonRequest(t, http.MethodGet, "/api/v1/users/current-user", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: env.accessToken(t, user.ID)})
	resp = decodeEnvelope(t, env.do(req), http.StatusOK)

	var current struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	}
	decodeData(t, resp, &current)
	if current.ID != user.ID || current.Username != "erin" {
		t.Fatalf("unexpected current user %+v", current)
	}
}

func TestCookieMaxAge(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{name: "whole seconds", expiresAt: now.Add(time.Hour), want: 3600},
		{name: "rounds up", expiresAt: now.Add(1500 * time.Millisecond), want: 2},
		{name: "expired", expiresAt: now.Add(-time.Second), want: -1},
		{name: "expires now", expiresAt: now, want: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cookieMaxAge(tc.expiresAt, now); got != tc.want {
				t.Fatalf("cookieMaxAge() = %d, want %d", got, tc.want)
			}
		})
	}
}
