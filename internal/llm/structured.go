// Package llm decodes and validates structured model replies.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrNoJSON = errors.New("reply contains no JSON object")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON pulls the JSON object out of raw, decodes it into out and
// validates out's struct tags.
func DecodeJSON(raw string, out any) error {
	block := extractJSONBlock(raw)
	if block == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate reply: %w", err)
	}
	return nil
}

func extractJSONBlock(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		return value
	}
	start := strings.Index(value, "{")
	end := strings.LastIndex(value, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
