package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"live777go/pkg/config"

	"github.com/gin-gonic/gin"
)

// credentialSet is one of auth.* / admin_auth.*: a set of acceptable
// bearer tokens and username/password accounts.
type credentialSet struct {
	tokens   []string
	accounts map[string]string
}

func newCredentialSet(tokens []string, accounts []struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}) *credentialSet {
	cs := &credentialSet{tokens: tokens, accounts: make(map[string]string, len(accounts))}
	for _, a := range accounts {
		cs.accounts[a.Username] = a.Password
	}
	return cs
}

// allows reports whether authHeader (the raw `Authorization` header value)
// satisfies this credential set, either by matching a configured bearer
// token or a configured Basic-auth account. An empty credential set (no
// tokens, no accounts configured) allows every request — auth is opt-in.
func (cs *credentialSet) allows(authHeader string) bool {
	if len(cs.tokens) == 0 && len(cs.accounts) == 0 {
		return true
	}
	if authHeader == "" {
		return false
	}

	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		for _, want := range cs.tokens {
			if subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
				return true
			}
		}
		return false
	}

	if encoded, ok := strings.CutPrefix(authHeader, "Basic "); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return false
		}
		user, pass, found := strings.Cut(string(decoded), ":")
		if !found {
			return false
		}
		want, ok := cs.accounts[user]
		return ok && subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1
	}

	return false
}

// UserAuth builds the middleware guarding WHIP/WHEP/session endpoints
// against auth.tokens / auth.accounts.
func UserAuth(cfg *config.Config) gin.HandlerFunc {
	return requireAuth(newCredentialSet(cfg.Auth.Tokens, cfg.Auth.Accounts))
}

// AdminAuth builds the middleware guarding /admin/* and /metrics against
// admin_auth.tokens / admin_auth.accounts.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return requireAuth(newCredentialSet(cfg.AdminAuth.Tokens, cfg.AdminAuth.Accounts))
}

func requireAuth(cs *credentialSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cs.allows(c.GetHeader("Authorization")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "missing or invalid credentials"})
			c.Abort()
			return
		}
		c.Next()
	}
}
