package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// source resolves a setting from the environment first and the optional
// YAML file second. File keys use the same names as the env vars.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}}
	if strings.TrimSpace(path) == "" {
		return src, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return source{}, fmt.Errorf("parse config file: %w", err)
	}
	for key, value := range values {
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			src.file[strings.ToUpper(key)] = strings.Join(parts, ",")
		default:
			src.file[strings.ToUpper(key)] = fmt.Sprint(v)
		}
	}
	return src, nil
}

func (s source) lookup(name string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return strings.TrimSpace(s.file[name])
}

func (s source) stringOrDefault(name, fallback string) string {
	value := s.lookup(name)
	if value == "" {
		return fallback
	}
	return value
}

func (s source) intOrDefault(name string, fallback int) int {
	value := s.lookup(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// nonNegativeIntOrDefault accepts zero, which some settings use to mean
// "no limit".
func (s source) nonNegativeIntOrDefault(name string, fallback int) int {
	value := s.lookup(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func (s source) minutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(s.intOrDefault(name, fallback)) * time.Minute
}

func (s source) hoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(s.intOrDefault(name, fallback)) * time.Hour
}

func (s source) secondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(s.intOrDefault(name, fallback)) * time.Second
}

func (s source) boolOrDefault(name string, fallback bool) bool {
	value := strings.ToLower(s.lookup(name))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (s source) listOrDefault(name string, fallback []string) []string {
	value := s.lookup(name)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
