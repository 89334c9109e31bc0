package observability

import (
	"net/url"
	"strings"
)

const redacted = "REDACTED"

// RedactURL keeps only the scheme and host of a webhook endpoint. Chat
// webhooks embed their credential in the path, so path, query and userinfo
// are all masked.
func RedactURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "<invalid-url>"
	}

	out := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		out += "/" + redacted
	}
	if u.RawQuery != "" {
		out += "?" + redacted
	}
	return out
}

// RedactToken keeps the non-secret prefix and timestamp segments of an API
// token and masks the random part.
func RedactToken(token string) string {
	idx := strings.LastIndex(token, "_")
	if idx <= 0 {
		return redacted
	}
	return token[:idx+1] + redacted
}
