package config

import (
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in redacted output.
const RedactedValue = "[REDACTED]"

// sensitiveHeaders are redacted regardless of value.
var sensitiveHeaders = []string{"authorization", "cookie", "token", "key", "secret"}

// Redacted returns a copy of the source settings that is safe to log: header
// values whose name looks sensitive and URL passwords are replaced.
func (s SourceConfig) Redacted() SourceConfig {
	out := s
	if u, err := url.Parse(s.BaseURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
			out.BaseURL = u.String()
		}
	}
	if len(s.Headers) > 0 {
		out.Headers = make(map[string]string, len(s.Headers))
		for name, val := range s.Headers {
			if isSensitiveHeader(name) {
				val = RedactedValue
			}
			out.Headers[name] = val
		}
	}
	return out
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveHeaders {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
