package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const maxPageSize = 100

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid_snowflake_id")
	}
	return parsed, nil
}

// parsePageSize returns 0 for an empty value so services apply their default.
func parsePageSize(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 || parsed > maxPageSize {
		return 0, errors.New("invalid_page_size")
	}
	return parsed, nil
}
