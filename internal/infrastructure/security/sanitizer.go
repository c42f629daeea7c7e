// Package security masks credential material before anything reaches the
// logs. The service handles an A1 certificate password and an A3 token PIN;
// neither may ever appear in a log line, whatever envelope carries it.
package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// sensitiveFields matches JSON keys and query parameters by substring. The
// Portuguese entries cover the credential vocabulary of emitter payloads:
// senha (the PKCS#12 password), pin and passphrase (token unlock codes).
var sensitiveFields = []string{
	"password",
	"senha",
	"pin",
	"passphrase",
	"secret",
	"token",
	"key",
	"authorization",
	"api_key",
	"apikey",
	"access_token",
	"refresh_token",
	"client_secret",
	"private_key",
	"credential",
	"auth",
}

const redactedValue = "[REDACTED]"

// SanitizeHeaders flattens an HTTP header map for logging, masking
// credential-bearing headers.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string)
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

// SanitizeBody prepares a request body for debug logging. JSON payloads have
// credential fields masked recursively; gzip payloads are decompressed first;
// signed XML and other non-JSON text is wrapped verbatim, and anything binary
// is base64-wrapped. Bodies above maxSize are cut to a preview so a batch of
// invoices cannot flood the log.
func SanitizeBody(body []byte, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	// gzip magic number
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		decompressed, err := decompressGzip(body)
		if err != nil {
			return wrapBinaryAsJSON(body, "gzip-compressed (decompression failed)")
		}
		body = decompressed
	}

	if !utf8.Valid(body) {
		return wrapBinaryAsJSON(body, "binary (non-UTF8)")
	}

	if maxSize > 0 && len(body) > maxSize {
		result, _ := json.Marshal(map[string]interface{}{
			"_truncated": true,
			"_size":      len(body),
			"_preview":   string(body[:maxSize]),
		})
		return json.RawMessage(result)
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return wrapTextAsJSON(body)
	}

	result, err := json.Marshal(sanitizeValue(data))
	if err != nil {
		return wrapTextAsJSON(body)
	}
	return json.RawMessage(result)
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func wrapTextAsJSON(data []byte) json.RawMessage {
	result, _ := json.Marshal(map[string]interface{}{
		"_raw":    string(data),
		"_format": "text",
	})
	return json.RawMessage(result)
}

func wrapBinaryAsJSON(data []byte, format string) json.RawMessage {
	result, _ := json.Marshal(map[string]interface{}{
		"_binary": true,
		"_format": format,
		"_size":   len(data),
		"_base64": base64.StdEncoding.EncodeToString(data),
	})
	return json.RawMessage(result)
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return sanitizeMap(val)
	case []interface{}:
		return sanitizeSlice(val)
	default:
		return val
	}
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{})
	for key, value := range m {
		if sensitiveKey(key) {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = sanitizeValue(value)
		}
	}
	return sanitized
}

func sanitizeSlice(s []interface{}) []interface{} {
	sanitized := make([]interface{}, len(s))
	for i, value := range s {
		sanitized[i] = sanitizeValue(value)
	}
	return sanitized
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// SanitizeURL masks the values of credential-bearing query parameters, so a
// request line like /status?token=... can be logged as-is.
func SanitizeURL(url string) string {
	lowerURL := strings.ToLower(url)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerURL, field+"=") {
			url = redactQueryParam(url, field)
		}
	}
	return url
}

func redactQueryParam(url, param string) string {
	lowerURL := strings.ToLower(url)
	idx := strings.Index(lowerURL, strings.ToLower(param)+"=")
	if idx == -1 {
		return url
	}
	startIdx := idx + len(param) + 1
	endIdx := strings.IndexAny(url[startIdx:], "&")
	if endIdx == -1 {
		return url[:startIdx] + redactedValue
	}
	return url[:startIdx] + redactedValue + url[startIdx+endIdx:]
}
