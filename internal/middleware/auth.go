package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityKey contextKey = "identity"

const jwksCacheTTL = 5 * time.Minute

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the caller behind a verified bearer token.
type Identity struct {
	Subject string
	Email   string
}

// Verifier checks a bearer token and returns who it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// CognitoVerifier validates RS256 tokens issued by a Cognito user pool.
type CognitoVerifier struct {
	issuer   string
	jwksURL  string
	clientID string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewCognitoVerifier(region, userPoolID, clientID string) *CognitoVerifier {
	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
	return &CognitoVerifier{
		issuer:   issuer,
		jwksURL:  issuer + "/.well-known/jwks.json",
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

func (v *CognitoVerifier) Verify(ctx context.Context, tokenStr string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if v.clientID != "" && claims["token_use"] == "id" {
		aud, _ := claims.GetAudience()
		if len(aud) != 1 || aud[0] != v.clientID {
			return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
		}
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["cognito:username"].(string)
	}
	return identityFromClaims(claims, email)
}

// key returns the signing key for kid, refreshing the key set when it is stale
// or does not know kid.
func (v *CognitoVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if k, ok := v.keys[kid]; ok && v.now().Sub(v.fetchedAt) < jwksCacheTTL {
		return k, nil
	}

	keys, err := v.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = v.now()

	k, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return k, nil
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *CognitoVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	return keys, nil
}

// HMACVerifier accepts HS256 tokens signed with a shared secret. Used for
// local development without a user pool.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenStr string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, classifyJWTError(err)
	}
	email, _ := claims["email"].(string)
	return identityFromClaims(claims, email)
}

// GenerateToken signs a short-lived development token for subject.
func (v *HMACVerifier) GenerateToken(subject, email string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func identityFromClaims(claims jwt.MapClaims, email string) (*Identity, error) {
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return &Identity{Subject: sub, Email: email}, nil
}

func classifyJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's Identity in the request context. A nil verifier answers 503.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusServiceUnavailable, "CONFIGURATION_ERROR", "Authentication is not configured (COGNITO_USER_POOL_ID)", r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format (expected Bearer token)", r)
				return
			}

			id, err := v.Verify(r.Context(), parts[1])
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
				} else {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the caller attached by RequireAuth, or nil.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": RequestIDFrom(r),
		},
	})
}
