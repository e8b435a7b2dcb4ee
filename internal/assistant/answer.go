package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Answer is the structured reply the model must produce.
type Answer struct {
	Answer         string   `json:"answer"`
	Steps          []string `json:"steps"`
	SafetyWarnings []string `json:"safety_warnings"`
	Escalate       bool     `json:"escalate"`
}

// ParseAnswer extracts the JSON object from arbitrary model output and
// unmarshals it.
func ParseAnswer(s string) (*Answer, string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, "", errors.New("empty response")
	}

	j := extractJSON(s)
	if j == "" {
		return nil, "", errors.New("no JSON object found in response")
	}

	var a Answer
	if err := json.Unmarshal([]byte(j), &a); err != nil {
		return nil, "", fmt.Errorf("json unmarshal: %w", err)
	}
	if a.Steps == nil {
		a.Steps = []string{}
	}
	if a.SafetyWarnings == nil {
		a.SafetyWarnings = []string{}
	}
	return &a, j, nil
}

// extractJSON returns the substring from the first '{' to the last '}'.
// Models like to wrap JSON in prose or markdown fences.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
