package oauthsp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/oauthsp/oauthsp/storage"
)

// EncodeTokenResponse renders a token as the form-urlencoded response body
// of the token endpoints. Request tokens carry only the credentials; access
// tokens add the session handle, effective duration, attributes and
// renewability.
func EncodeTokenResponse(token *storage.Token) string {
	pairs := [][2]string{
		{"oauth_token", token.Key},
		{"oauth_token_secret", token.Secret},
	}

	if token.Type == storage.TokenAccess {
		pairs = append(pairs,
			[2]string{"oauth_session_handle", token.SessionHandle},
			[2]string{"oauth_token_duration", strconv.FormatInt(token.Duration, 10)},
			[2]string{"oauth_token_attributes", token.Attributes},
			[2]string{"oauth_token_renewable", strconv.FormatBool(token.CanRenew)},
		)
	}

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}
