package handler

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/model"
)

const sessionCookieName = "docexam_session"

type sessionCtxKey struct{}

// withSession resolves the exam session named by the session cookie,
// creating one and setting the cookie when it is missing or expired.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			id = c.Value
		}

		sess, err := h.svc.Resolve(r.Context(), id)
		if err != nil {
			slog.Error("failed to resolve session", "error", err)
			writeError(w, r, http.StatusInternalServerError, "ErrInternal")
			return
		}
		if sess.ID() != id {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := model.ContextWithSessionID(r.Context(), sess.ID())
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *exam.Session {
	sess, _ := r.Context().Value(sessionCtxKey{}).(*exam.Session)
	return sess
}

// checkAdminPassword reports whether password matches the stored admin
// hash. Without a stored hash every password is accepted.
func (h *Handler) checkAdminPassword(password string) (bool, error) {
	hash, err := h.store.AdminPasswordHash()
	if err != nil {
		return false, err
	}
	if hash == "" {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}
