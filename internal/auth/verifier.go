package auth

import (
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type VerifierConfig struct {
	// Secret enables HS256 tokens.
	Secret string
	// PublicKeyFile holds PEM public keys or certificates for RS256/ES256 tokens.
	PublicKeyFile string
	Issuer        string
	// DebugToken, when set, is accepted verbatim as an admin principal.
	DebugToken string
}

// Verifier turns bearer tokens into principals.
type Verifier struct {
	secret     []byte
	publicKeys []interface{}
	issuer     string
	debugToken string
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		debugToken: cfg.DebugToken,
	}
	if cfg.PublicKeyFile != "" {
		keys, err := loadPublicKeys(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load auth keys: %w", err)
		}
		v.publicKeys = keys
	}
	if len(v.secret) == 0 && len(v.publicKeys) == 0 && v.debugToken == "" {
		return nil, errors.New("auth: no secret, public key or debug token configured")
	}
	return v, nil
}

func loadPublicKeys(path string) ([]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, certErr := x509.ParseCertificate(block.Bytes)
			if certErr != nil {
				continue
			}
			key = cert.PublicKey
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid keys found in %s", path)
	}
	return keys, nil
}

// Verify validates tokenStr and extracts sub, teams and roles claims.
func (v *Verifier) Verify(tokenStr string) (*Principal, error) {
	if v.debugToken != "" && subtle.ConstantTimeCompare([]byte(tokenStr), []byte(v.debugToken)) == 1 {
		return &Principal{Subject: "debug", Roles: []string{RoleAdmin}}, nil
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var lastErr error = errors.New("no verification key configured")
	if len(v.secret) > 0 {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return v.secret, nil
		}, append(opts, jwt.WithValidMethods([]string{"HS256"}))...)
		if err == nil {
			return principalFromClaims(claims)
		}
		lastErr = err
	}
	for _, key := range v.publicKeys {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, append(opts, jwt.WithValidMethods([]string{"RS256", "ES256"}))...)
		if err == nil {
			return principalFromClaims(claims)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("token parse error: %w", lastErr)
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token missing sub claim")
	}
	p := &Principal{Subject: sub}
	p.Teams = stringList(claims["teams"])
	if team, ok := claims["team"].(string); ok && team != "" {
		p.Teams = append(p.Teams, team)
	}
	p.Roles = stringList(claims["roles"])
	return p, nil
}

func stringList(v interface{}) []string {
	switch vv := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return strings.Fields(strings.ReplaceAll(vv, ",", " "))
	}
	return nil
}

// Middleware requires a valid bearer token and stores the Principal in the
// request context.
func Middleware(v *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			p, err := v.Verify(strings.TrimSpace(authz[7:]))
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
