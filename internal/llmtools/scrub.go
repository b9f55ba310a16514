package llmtools

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hyperifyio/dentalguide/internal/search"
)

// scrubValue walks arbitrary JSON-like data and scrubs sensitive information.
//   - Strings that look like URLs are normalized, tracking params are removed,
//     sensitive param values are replaced with "[redacted]" and userinfo is
//     removed.
//   - Header-like strings such as Authorization/Cookie have values redacted.
//   - Maps and arrays are processed recursively.
func scrubValue(v any) any {
	switch t := v.(type) {
	case string:
		return scrubString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = scrubValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = scrubValue(vv)
		}
		return out
	default:
		return v
	}
}

var (
	reAuthHeader   = regexp.MustCompile(`(?i)(authorization\s*:\s*)([^\r\n]+)`)
	reCookieHeader = regexp.MustCompile(`(?i)\b(set-cookie|cookie)\s*:\s*[^\r\n]+`)
	reBearer       = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-+/=]+`)
	reKeyParam     = regexp.MustCompile(`(?i)\b(key|api_key|apikey|x-api-key)=([A-Za-z0-9._\-]+)`)
)

// scrubString redacts header-like secrets and sanitizes URL strings.
func scrubString(s string) string {
	s = reAuthHeader.ReplaceAllString(s, "$1[redacted]")
	s = reCookieHeader.ReplaceAllString(s, "$1: [redacted]")
	s = reBearer.ReplaceAllString(s, "Bearer [redacted]")

	if !strings.ContainsAny(s, " \n\t") {
		if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
			return sanitizeURLForSafety(u)
		}
	}
	return reKeyParam.ReplaceAllString(s, "$1=[redacted]")
}

// sanitizeURLForSafety normalizes u and redacts secret query values.
func sanitizeURLForSafety(u *url.URL) string {
	u.User = nil
	cleaned := search.NormalizeURL(u.String())
	uu, err := url.Parse(cleaned)
	if err != nil {
		return cleaned
	}
	q := uu.Query()
	redacted := false
	for _, key := range []string{"token", "access_token", "id_token", "api_key", "apikey", "x_api_key", "key", "secret", "password", "auth"} {
		if _, ok := q[key]; ok {
			q.Del(key)
			q.Add(key, "[redacted]")
			redacted = true
		}
	}
	if redacted {
		uu.RawQuery = q.Encode()
	}
	return uu.String()
}
