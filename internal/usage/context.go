package usage

import (
	"fmt"

	"github.com/mrz1836/tokengov/internal/constants"
)

func complexityFromContext(opCtx map[string]any) constants.Complexity {
	switch v := opCtx[ContextComplexity].(type) {
	case constants.Complexity:
		return v
	case string:
		c, _ := constants.ParseComplexity(v)
		return c
	}
	return constants.ComplexitySimple
}

func stringFromContext(opCtx map[string]any, key string) string {
	switch v := opCtx[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// intFromContext accepts the numeric types a context map picks up from Go
// callers and from decoded JSON.
func intFromContext(opCtx map[string]any, key string, def int) int {
	switch v := opCtx[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return def
}
