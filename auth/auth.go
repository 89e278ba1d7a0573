package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

type Client interface {
	// Auth authenticates the subscriber of current request, returns the
	// operator id.
	Auth(r *http.Request) (string, error)
}

// TokenClient authenticates operators by static bearer tokens.
type TokenClient struct {
	// token -> operator
	tokens map[string]string
}

// NewTokenClient parses comma separated `operator:token` pairs.
func NewTokenClient(pairs string) (*TokenClient, error) {
	c := &TokenClient{tokens: make(map[string]string)}
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		i := strings.IndexByte(pair, ':')
		if i <= 0 || i == len(pair)-1 {
			return nil, fmt.Errorf("bad auth token pair %q, expect operator:token", pair)
		}
		c.tokens[pair[i+1:]] = pair[:i]
	}
	if len(c.tokens) == 0 {
		return nil, fmt.Errorf("no auth tokens")
	}
	return c, nil
}

// Auth reads the token from the `Authorization: Bearer` header, the `token`
// query parameter or the `x-token` cookie, in that order. Browsers can not
// set headers on websocket requests.
func (c *TokenClient) Auth(r *http.Request) (string, error) {
	token := requestToken(r)
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	for t, operator := range c.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return operator, nil
		}
	}
	return "", fmt.Errorf("invalid token")
}

func requestToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	if c, err := r.Cookie("x-token"); err == nil {
		return c.Value
	}
	return ""
}
