package service

import (
	"fmt"
	"strconv"
	"strings"
)

// normalizeOptions flattens request parameters into the string form used by
// price keys: durations lose their unit suffix, booleans for sound become "audio".
func normalizeOptions(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" || value == nil {
			continue
		}
		switch name {
		case "duration":
			if v := normalizeDuration(value); v != "" {
				out[name] = v
			}
		case "sound", "audio", "with_audio", "generate_audio":
			if truthy(value) {
				out["sound"] = "audio"
			}
		default:
			if v := strings.ToLower(strings.TrimSpace(stringify(value))); v != "" {
				out[name] = v
			}
		}
	}
	return out
}

func normalizeDuration(value any) string {
	s := strings.ToLower(strings.TrimSpace(stringify(value)))
	s = strings.TrimSuffix(s, "seconds")
	s = strings.TrimSuffix(s, "sec")
	s = strings.TrimSuffix(s, "s")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on", "audio":
			return true
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return stringify(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
