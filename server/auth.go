package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

type contextKey string

const affiliateContextKey contextKey = "affiliate"

// requireSession authenticates the affiliate dashboard surfaces. Sessions are
// HS256 JWTs whose subject is the affiliate's email.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		email, err := s.verifySession(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		affiliate, err := s.store.AffiliateByEmail(r.Context(), email)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				s.writeError(w, http.StatusUnauthorized, "unknown affiliate")
				return
			}
			s.writeError(w, http.StatusInternalServerError, "failed to resolve session")
			return
		}
		ctx := context.WithValue(r.Context(), affiliateContextKey, affiliate)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) verifySession(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token missing subject")
	}
	return subject, nil
}

// requireSharedSecret guards machine-to-machine surfaces with a static bearer
// secret. A server without the secret configured rejects every call.
func (s *Server) requireSharedSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := parseBearerToken(r.Header.Get("Authorization"))
			if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyPaystackSignature checks the HMAC-SHA512 signature Paystack sends
// over the raw request body.
func (s *Server) verifyPaystackSignature(body []byte, signature string) bool {
	if len(s.paystackSecret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, s.paystackSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func affiliateFromContext(ctx context.Context) *models.Affiliate {
	affiliate, _ := ctx.Value(affiliateContextKey).(*models.Affiliate)
	return affiliate
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
