package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"live777go/pkg/config"
)

// linkHeaderValues renders one `Link:` header value per ICE server:
// `<url>; rel="ice-server"` with optional username/credential/credential-
// type attributes, JSON-string-escaped for quoting.
func linkHeaderValues(servers []config.ICEServer) []string {
	values := make([]string, 0, len(servers))
	for _, s := range servers {
		for _, url := range s.URLs {
			var b strings.Builder
			fmt.Fprintf(&b, "<%s>; rel=\"ice-server\"", url)
			if s.Username != "" {
				fmt.Fprintf(&b, "; username=%s", jsonQuote(s.Username))
			}
			if s.Credential != "" {
				fmt.Fprintf(&b, "; credential=%s", jsonQuote(s.Credential))
			}
			if s.CredentialType != "" {
				fmt.Fprintf(&b, "; credential-type=%s", jsonQuote(s.CredentialType))
			}
			values = append(values, b.String())
		}
	}
	return values
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
