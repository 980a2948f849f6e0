package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/search"
)

const maxSearchLimit = 200

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

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseOptionalDecimal(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// pathID reads the :id segment. It aborts the request and returns false when
// the segment is not a snowflake id.
func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return *id, true
}

// queryID reads an optional snowflake query parameter; zero means absent.
func queryID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Query(name))
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	if id == nil {
		return 0, true
	}
	return *id, true
}

func searchLimit(c *gin.Context) (int, bool) {
	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil || (limit != nil && *limit <= 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return 0, false
	}
	if limit == nil {
		return search.DefaultLimit, true
	}
	if *limit > maxSearchLimit {
		return maxSearchLimit, true
	}
	return int(*limit), true
}
