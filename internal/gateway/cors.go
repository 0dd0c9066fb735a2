package gateway

import (
	"net/http"
	"strings"
)

var devOrigins = map[string]bool{
	"http://localhost:3000": true,
	"http://localhost:5173": true,
	"http://localhost:8081": true, // Expo web
}

// AllowOrigin reports whether a browser origin may call the API: local
// development servers plus avivago.mx and its subdomains over https.
func AllowOrigin(_ *http.Request, origin string) bool {
	if devOrigins[origin] {
		return true
	}
	if origin == "https://avivago.mx" {
		return true
	}
	return strings.HasPrefix(origin, "https://") && strings.HasSuffix(origin, ".avivago.mx")
}
