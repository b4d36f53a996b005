package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidTemperature     = errors.New("temperature must be between 0 and 1")
	ErrInvalidTopP            = errors.New("top-p must be between 0 and 1")
	ErrInvalidTopK            = errors.New("top-k must be a positive integer")
	ErrInvalidMaxOutputTokens = errors.New("max output tokens must be a positive integer")
	ErrUnknownConfigField     = errors.New("unknown config field")
)

// GenerationConfig is shared by every chat and compare dispatch.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopP:            1,
		TopK:            1,
		MaxOutputTokens: 2048,
	}
}

func (c GenerationConfig) Validate() error {
	// Written so NaN fails the range check.
	if !(c.Temperature >= 0 && c.Temperature <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, c.Temperature)
	}
	if !(c.TopP >= 0 && c.TopP <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidTopP, c.TopP)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MaxOutputTokens < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxOutputTokens, c.MaxOutputTokens)
	}
	return nil
}

func ConfigFields() []string {
	return []string{"temperature", "top-p", "top-k", "max-output-tokens"}
}

// WithField applies a textual edit to one field. On any parse or range error
// the receiver is returned unchanged alongside the error.
func (c GenerationConfig) WithField(field, value string) (GenerationConfig, error) {
	next := c
	value = strings.TrimSpace(value)

	switch normalizeField(field) {
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return c, fmt.Errorf("%w: %q is not a number", ErrInvalidTemperature, value)
		}
		next.Temperature = f
	case "top-p":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return c, fmt.Errorf("%w: %q is not a number", ErrInvalidTopP, value)
		}
		next.TopP = f
	case "top-k":
		n, err := strconv.Atoi(value)
		if err != nil {
			return c, fmt.Errorf("%w: %q is not an integer", ErrInvalidTopK, value)
		}
		next.TopK = n
	case "max-output-tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return c, fmt.Errorf("%w: %q is not an integer", ErrInvalidMaxOutputTokens, value)
		}
		next.MaxOutputTokens = n
	default:
		return c, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownConfigField, field, ConfigFields())
	}

	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func normalizeField(field string) string {
	f := strings.ToLower(strings.TrimSpace(field))
	f = strings.ReplaceAll(f, "_", "-")
	switch f {
	case "temp", "t":
		return "temperature"
	case "topp", "top-p", "p":
		return "top-p"
	case "topk", "top-k", "k":
		return "top-k"
	case "max-tokens", "maxoutputtokens", "max-output-tokens", "max":
		return "max-output-tokens"
	}
	return f
}
