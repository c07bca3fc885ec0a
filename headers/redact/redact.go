// headers/redact/redact.go
package redact

import (
	"net/http"
	"strings"
)

const redacted = "REDACTED"

// sensitiveKeys are header or field names whose values never reach the logs when redaction is on.
var sensitiveKeys = map[string]bool{
	"accesstoken":   true,
	"refreshtoken":  true,
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// RedactSensitiveHeaderData redacts sensitive data based on the hideSensitiveData flag.
func RedactSensitiveHeaderData(hideSensitiveData bool, key, value string) string {
	if hideSensitiveData && sensitiveKeys[strings.ToLower(key)] {
		return redacted
	}
	return value
}

// RedactHeaders returns a copy of h suitable for logging. The original header is not modified.
func RedactHeaders(hideSensitiveData bool, h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for key, values := range h {
		copied := make([]string, len(values))
		for i, v := range values {
			copied[i] = RedactSensitiveHeaderData(hideSensitiveData, key, v)
		}
		out[key] = copied
	}
	return out
}
