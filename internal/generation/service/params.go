package service

import (
	"fmt"
	"strconv"
	"strings"

	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	"github.com/smallbiznis/genstudio/pkg/media"
)

const maxPromptLength = 5000

// validateParameters checks the inputs every provider of kind needs.
func validateParameters(kind media.Kind, params map[string]any) error {
	prompt := text(params["prompt"])
	if len(prompt) > maxPromptLength {
		return fmt.Errorf("%w: prompt exceeds %d characters", generationdomain.ErrInvalidParameters, maxPromptLength)
	}

	switch kind {
	case media.KindImage, media.KindVideo:
		if prompt == "" && text(params["image_url"]) == "" && !hasList(params["image_urls"]) {
			return fmt.Errorf("%w: prompt or image is required", generationdomain.ErrInvalidParameters)
		}
	case media.KindAudio:
		if text(params["text"]) == "" && prompt == "" {
			return fmt.Errorf("%w: text is required", generationdomain.ErrInvalidParameters)
		}
	case media.KindMusic:
		if prompt == "" && text(params["lyrics"]) == "" {
			return fmt.Errorf("%w: prompt or lyrics is required", generationdomain.ErrInvalidParameters)
		}
	}

	if raw, ok := params["duration"]; ok {
		if _, ok := durationSeconds(raw); !ok {
			return fmt.Errorf("%w: duration must be a positive number of seconds", generationdomain.ErrInvalidParameters)
		}
	}
	return nil
}

// checkDuration enforces the catalog cap on requested clip length.
func checkDuration(model *aimodeldomain.AIModel, params map[string]any) error {
	if model.MaxDurationSeconds == nil || *model.MaxDurationSeconds <= 0 {
		return nil
	}
	raw, ok := params["duration"]
	if !ok {
		return nil
	}
	seconds, _ := durationSeconds(raw)
	if seconds > *model.MaxDurationSeconds {
		return fmt.Errorf("%w: %s supports at most %d seconds", generationdomain.ErrInvalidParameters, model.ModelKey, *model.MaxDurationSeconds)
	}
	return nil
}

func durationSeconds(v any) (int, bool) {
	switch d := v.(type) {
	case float64:
		return int(d), d > 0
	case int:
		return d, d > 0
	case int64:
		return int(d), d > 0
	case string:
		s := strings.ToLower(strings.TrimSpace(d))
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "seconds"), "s"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func hasList(v any) bool {
	switch l := v.(type) {
	case []any:
		return len(l) > 0
	case []string:
		return len(l) > 0
	}
	return false
}
