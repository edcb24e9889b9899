package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"live777go/pkg/config"
)

func TestLinkHeaderValuesPlainServer(t *testing.T) {
	servers := []config.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	values := linkHeaderValues(servers)
	assert.Equal(t, []string{`<stun:stun.example.com:3478>; rel="ice-server"`}, values)
}

func TestLinkHeaderValuesWithCredentials(t *testing.T) {
	servers := []config.ICEServer{{
		URLs:           []string{"turn:turn.example.com:3478"},
		Username:       "user",
		Credential:     "pass\"word",
		CredentialType: "password",
	}}
	values := linkHeaderValues(servers)
	require := assert.New(t)
	require.Len(values, 1)
	require.Contains(values[0], `<turn:turn.example.com:3478>; rel="ice-server"`)
	require.Contains(values[0], `username="user"`)
	require.Contains(values[0], `credential-type="password"`)
	// the embedded quote in the credential must come back escaped, not break the header
	require.Contains(values[0], `credential="pass\"word"`)
}

func TestLinkHeaderValuesMultipleURLsAndServers(t *testing.T) {
	servers := []config.ICEServer{
		{URLs: []string{"stun:a.example.com", "stun:b.example.com"}},
		{URLs: []string{"turn:c.example.com"}, Username: "u"},
	}
	values := linkHeaderValues(servers)
	assert.Len(t, values, 3)
}
