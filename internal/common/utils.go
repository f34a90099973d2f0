package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
)

var (
	objRegex = regexp.MustCompile(`(?s)\{.*\}`)
	arrRegex = regexp.MustCompile(`(?s)\[.*\]`)
)

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// ExtractJSON extracts JSON content from a text string
// It looks for content between { and } or [ and ] brackets
func ExtractJSON(text string) (string, error) {
	// Try to find JSON object
	if objMatch := objRegex.FindString(text); objMatch != "" {
		var obj interface{}
		if err := json.Unmarshal([]byte(objMatch), &obj); err == nil {
			return objMatch, nil
		}
	}

	// Try to find JSON array
	if arrMatch := arrRegex.FindString(text); arrMatch != "" {
		var arr interface{}
		if err := json.Unmarshal([]byte(arrMatch), &arr); err == nil {
			return arrMatch, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in text")
}

// GetStringValue retrieves a string value from a map using multiple possible keys
// It tries each key in order and returns the first non-empty value found
func GetStringValue(data map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if strVal, ok := val.(string); ok && strVal != "" {
				return strVal, true
			}
		}
	}
	return "", false
}

// ReturnJSONError writes a JSON error response with the given status code and message
func ReturnJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}

	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		// If JSON encoding fails, fall back to plain text
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(fmt.Sprintf("Error: %s", message)))
	}
}

// ReturnJSON writes v as a JSON response with the given status code
func ReturnJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
