package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// plainKeys never carry credentials and are logged as is.
var plainKeys = map[string]bool{
	"operation": true,
	"phase":     true,
	"code":      true,
	"module":    true,
	"token":     true,
	"account":   true,
	"amount":    true,
	"component": true,
	"driver":    true,
	"endpoint":  true,
}

func isPlain(key string) bool {
	return plainKeys[strings.ToLower(strings.TrimSpace(key))]
}

// MaskField masks value unless key is a known plain attribute. Blank values
// pass through so a missing setting stays visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || isPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskHeaders logs the names of a key=value header list and masks every
// value.
func MaskHeaders(key, raw string) slog.Attr {
	var names []string
	for _, pair := range strings.Split(raw, ",") {
		name, _, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}
		names = append(names, name+"="+RedactedValue)
	}
	return slog.String(key, strings.Join(names, ","))
}

// MaskDSN hides the password in an event log DSN. URL and key=value forms
// keep their host, user and database; plain sqlite paths pass through.
func MaskDSN(key, dsn string) slog.Attr {
	trimmed := strings.TrimSpace(dsn)
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return MaskField(key, dsn)
		}
		return slog.String(key, u.Redacted())
	}
	if !strings.Contains(trimmed, "=") {
		return slog.String(key, dsn)
	}
	fields := strings.Fields(trimmed)
	for i, field := range fields {
		name, _, _ := strings.Cut(field, "=")
		if strings.EqualFold(name, "password") {
			fields[i] = name + "=" + RedactedValue
		}
	}
	return slog.String(key, strings.Join(fields, " "))
}
