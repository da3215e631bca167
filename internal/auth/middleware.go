package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Claims carries the authenticated party identity. Every request acts as an
// explicit party; handlers never infer identity from anything else.
type Claims struct {
	PartyID   string          `json:"partyId"`
	PartyType types.PartyType `json:"partyType"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	jwt.RegisteredClaims
}

// Party returns the claims as a call participant.
func (c *Claims) Party() types.Party {
	return types.Party{ID: c.PartyID, Type: c.PartyType}
}

// IsAdmin reports whether the party holds the administrative role.
func (c *Claims) IsAdmin() bool {
	return c.PartyType == types.PartyAdmin
}

type contextKey string

const UserContextKey contextKey = "user"

// JWKSManager handles JWKS fetching and caching
type JWKSManager struct {
	jwks      keyfunc.Keyfunc
	issuerURL string
	mu        sync.RWMutex
}

var (
	jwksManager *JWKSManager
	jwksOnce    sync.Once
)

// InitJWKS initializes the JWKS manager for token verification.
// Call this on server startup in production mode.
func InitJWKS(issuerURL string) error {
	var initErr error
	jwksOnce.Do(func() {
		jwksManager = &JWKSManager{issuerURL: issuerURL}
		initErr = jwksManager.refresh()
	})
	return initErr
}

func (m *JWKSManager) refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	jwksURL := strings.TrimSuffix(m.issuerURL, "/") + "/protocol/openid-connect/certs"

	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return fmt.Errorf("failed to create keyfunc: %w", err)
	}

	m.jwks = k
	return nil
}

func (m *JWKSManager) getKeyfunc() jwt.Keyfunc {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.jwks == nil {
		return nil
	}
	return m.jwks.Keyfunc
}

// Middleware validates bearer tokens and attaches party claims to the context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// In development mode, you can bypass auth
		if os.Getenv("SKIP_AUTH") == "true" {
			ctx := context.WithValue(r.Context(), UserContextKey, devClaims(r))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}

		claims, err := validateToken(tokenString)
		if err != nil {
			http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// devClaims builds claims for SKIP_AUTH mode. Party identity can be supplied
// via headers so integration tests can act as different parties.
func devClaims(r *http.Request) *Claims {
	partyType := types.PartyType(r.Header.Get("X-Dev-Party-Type"))
	if !partyType.Valid() {
		partyType = types.PartyAdmin
	}
	partyID := r.Header.Get("X-Dev-Party-ID")
	if partyID == "" {
		partyID = "dev-" + string(partyType)
	}
	return &Claims{
		PartyID:   partyID,
		PartyType: partyType,
		Name:      "Dev User",
		Email:     "dev@callcore.local",
	}
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// Query parameter fallback for WebSocket connections
	return r.URL.Query().Get("token")
}

// validateToken validates the JWT token with optional signature verification
func validateToken(tokenString string) (*Claims, error) {
	verifySignature := os.Getenv("VERIFY_JWT_SIGNATURE") != "false"

	var token *jwt.Token
	var err error

	if verifySignature {
		token, err = parseAndVerifyToken(tokenString)
		if err != nil {
			return nil, err
		}
	} else {
		// Local testing only: parse without verification
		token, _, err = new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}

	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
		claims.PartyID = sub
	}
	if id, ok := mapClaims["party_id"].(string); ok && id != "" {
		claims.PartyID = id
	}
	if pt, ok := mapClaims["party_type"].(string); ok {
		claims.PartyType = types.PartyType(pt)
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	} else if preferredUsername, ok := mapClaims["preferred_username"].(string); ok {
		claims.Name = preferredUsername
	}

	if claims.PartyID == "" {
		return nil, fmt.Errorf("token missing party identity")
	}
	if !claims.PartyType.Valid() {
		return nil, fmt.Errorf("token missing or invalid party_type")
	}

	// Unverified tokens skip the library's expiry check
	if !verifySignature {
		if exp, ok := mapClaims["exp"].(float64); ok {
			expTime := time.Unix(int64(exp), 0)
			claims.ExpiresAt = jwt.NewNumericDate(expTime)
			if expTime.Before(time.Now()) {
				return nil, fmt.Errorf("token expired")
			}
		}
	}

	return claims, nil
}

// parseAndVerifyToken verifies the JWT signature using JWKS
func parseAndVerifyToken(tokenString string) (*jwt.Token, error) {
	if jwksManager == nil {
		issuer := os.Getenv("OIDC_ISSUER")
		if issuer == "" {
			return nil, fmt.Errorf("OIDC_ISSUER not configured for JWT verification")
		}
		if err := InitJWKS(issuer); err != nil {
			return nil, fmt.Errorf("failed to initialize JWKS: %w", err)
		}
	}

	keyfn := jwksManager.getKeyfunc()
	if keyfn == nil {
		return nil, fmt.Errorf("JWKS not available")
	}

	token, err := jwt.Parse(tokenString, keyfn,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

// GetUserFromContext retrieves party claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// RequireAdmin rejects requests whose party is not an admin
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok || claims.PartyType != types.PartyAdmin {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
