package auth

import (
	"net/http"
	"strings"
)

const bearerScheme = "Bearer"

// ExtractToken returns the token from an "Authorization: Bearer <token>" header.
// The scheme check is a case-sensitive prefix match and exactly one space must
// separate scheme and token. The token itself is returned unvalidated.
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", Unauthorized("Authorization header not found.")
	}

	if !strings.HasPrefix(header, bearerScheme) {
		return "", Unauthorized("Authorization header is not of type 'Bearer'.")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", Unauthorized("Authorization header value has too many parts. It must follow the pattern: 'Bearer xx.yy.zz' where xx.yy.zz is a valid JWT token.")
	}

	return parts[1], nil
}
