package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/assessor/internal/model"
)

// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims identifying a caller. The subject carries the user ID.
type Claims struct {
	Role model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a user. A zero ttl issues a token without expiry.
func IssueToken(secret []byte, userID int64, role model.UserRole, ttl time.Duration) (string, error) {
	if !validRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies a token and returns the principal it names.
func ParseToken(secret []byte, tokenString string) (*model.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || !validRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return &model.Principal{UserID: id, Role: claims.Role}, nil
}

func validRole(r model.UserRole) bool {
	switch r {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
		return true
	}
	return false
}

// requireAuth verifies the bearer token and stores the principal in the context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			h.fail(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
			return
		}
		p, err := ParseToken(h.secret, token)
		if err != nil {
			h.logger.Debug("rejected token", "error", err)
			h.fail(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithPrincipal(r.Context(), p)))
	})
}

// requireRole returns middleware that checks the caller has one of the allowed roles.
func (h *Handler) requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := model.PrincipalFromContext(r.Context())
			if p == nil {
				h.fail(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
				return
			}
			for _, role := range allowed {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			h.fail(w, r, http.StatusForbidden, "ErrForbidden", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
