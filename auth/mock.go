package auth

import (
	"fmt"
	"net/http"
)

// MockClient trusts the `x-uid` cookie, for development only.
type MockClient struct {
	Client
}

func (c *MockClient) Auth(r *http.Request) (string, error) {
	var uid string

	if c, err := r.Cookie("x-uid"); err == nil {
		uid = c.Value
	}

	if uid == "" {
		return "", fmt.Errorf("empty x-uid from cookie")
	}
	return uid, nil
}
