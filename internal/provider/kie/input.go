package kie

import (
	"strconv"
	"strings"
)

const defaultAspectRatio = "16:9"

// keys consumed by pricing or by the input builders below; never forwarded as-is.
var reservedKeys = map[string]struct{}{
	"quality":               {},
	"sound":                 {},
	"image_url":             {},
	"video_url":             {},
	"character_orientation": {},
	"aspect_ratio":          {},
	"duration":              {},
	"resolution":            {},
}

func isVeo(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "veo3")
}

func veoModel(model string, params map[string]any) string {
	switch strings.ToLower(str(params["quality"])) {
	case "quality", "high":
		return "veo3"
	case "fast":
		return "veo3_fast"
	}
	if model == "" {
		return "veo3_fast"
	}
	return model
}

func buildVeoBody(model string, params map[string]any, callbackURL string) map[string]any {
	body := map[string]any{
		"prompt":            str(params["prompt"]),
		"model":             veoModel(model, params),
		"aspectRatio":       firstNonEmpty(str(params["aspect_ratio"]), defaultAspectRatio),
		"enableTranslation": true,
		"enableFallback":    false,
	}
	if urls := imageURLs(params); len(urls) > 0 {
		body["imageUrls"] = urls
		body["generationType"] = "FIRST_AND_LAST_FRAMES_2_VIDEO"
	}
	if gt := str(params["generation_type"]); gt != "" {
		body["generationType"] = gt
	}
	if callbackURL != "" {
		body["callBackUrl"] = callbackURL
	}
	return body
}

// buildTaskInput maps request parameters onto the per-family input schema of
// /api/v1/jobs/createTask. Unknown parameters pass through untouched.
func buildTaskInput(model string, params map[string]any) map[string]any {
	input := map[string]any{}
	for key, value := range params {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		input[key] = value
	}

	m := strings.ToLower(model)
	imageURL := str(params["image_url"])
	videoURL := str(params["video_url"])
	aspect := str(params["aspect_ratio"])
	duration := durationString(params["duration"])

	if m == "kling-2.6/motion-control" {
		if imageURL != "" {
			input["input_urls"] = []string{imageURL}
		}
		if videoURL != "" {
			input["video_urls"] = []string{videoURL}
		}
		input["character_orientation"] = firstNonEmpty(str(params["character_orientation"]), "video")
		if res := str(params["resolution"]); res != "" {
			input["mode"] = res
		}
		return input
	}

	if urls := imageURLs(params); len(urls) > 0 {
		input["image_urls"] = urls
	}
	if videoURL != "" {
		input["video_url"] = videoURL
	}

	if truthy(params["sound"]) {
		switch {
		case strings.Contains(m, "kling"), strings.Contains(m, "seedance"), strings.Contains(m, "bytedance"):
			input["generate_audio"] = true
		case strings.Contains(m, "wan"):
			input["audio"] = true
		}
	}

	switch {
	case strings.HasPrefix(m, "kling-2.6"):
		input["duration"] = firstNonEmpty(duration, "5")
		input["aspect_ratio"] = firstNonEmpty(aspect, defaultAspectRatio)
	case strings.HasPrefix(m, "grok-imagine"):
		if _, ok := input["mode"]; !ok {
			input["mode"] = "normal"
		}
	case strings.HasPrefix(m, "sora-2"):
		seconds := 10
		if n, err := strconv.Atoi(duration); err == nil && n > 0 {
			seconds = n
		}
		input["seconds"] = seconds
		if size := soraSize(aspect); size != "" {
			input["size"] = size
		}
	case strings.Contains(m, "wan"):
		input["duration"] = firstNonEmpty(duration, "5")
		if aspect != "" {
			input["aspect_ratio"] = aspect
		}
	case strings.Contains(m, "seedance"), strings.Contains(m, "bytedance"):
		input["duration"] = firstNonEmpty(duration, "10")
		if aspect != "" {
			input["aspect_ratio"] = aspect
		}
		if imageURL != "" {
			input["image"] = imageURL
		}
	default:
		if aspect != "" {
			input["aspect_ratio"] = aspect
		}
		if duration != "" {
			input["duration"] = duration
		}
	}

	if res := resolutionFor(m, str(params["quality"]), str(params["resolution"])); res != "" {
		input["resolution"] = res
	}
	return input
}

func resolutionFor(model, quality, resolution string) string {
	high := resolution == "1080p" || quality == "high" || quality == "quality" || quality == "pro"
	standard := resolution == "720p" || quality == "standard" || quality == "fast"
	switch {
	case strings.Contains(model, "hailuo"):
		if high {
			return "1080P"
		}
		if standard {
			return "768P"
		}
	case strings.Contains(model, "wan"), strings.Contains(model, "seedance"), strings.Contains(model, "bytedance"):
		if high {
			return "1080p"
		}
		if standard {
			return "720p"
		}
	}
	return ""
}

func soraSize(aspect string) string {
	switch aspect {
	case "16:9", "landscape":
		return "1280x720"
	case "9:16", "portrait":
		return "720x1280"
	case "1:1":
		return "1024x1024"
	}
	return ""
}

func imageURLs(params map[string]any) []string {
	var urls []string
	switch v := params["image_urls"].(type) {
	case []string:
		urls = append(urls, v...)
	case []any:
		for _, item := range v {
			if s := str(item); s != "" {
				urls = append(urls, s)
			}
		}
	}
	if len(urls) == 0 {
		if s := str(params["image_url"]); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

func durationString(v any) string {
	s := strings.TrimSuffix(strings.ToLower(str(v)), "s")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		b = strings.ToLower(strings.TrimSpace(b))
		return b == "true" || b == "1" || b == "yes" || b == "audio"
	}
	return false
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
