package dbexec

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// convertValue maps driver values onto plain Go values the assembler can serialize.
// Temporal values become ISO-8601 strings.
func convertValue(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return NodeValue{ID: val.ElementId, Labels: val.Labels, Props: convertMap(val.Props)}
	case dbtype.Relationship:
		return convertMap(val.Props)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = convertValue(val[i])
		}
		return out
	case map[string]any:
		return convertMap(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case dbtype.Date:
		return val.String()
	case dbtype.LocalDateTime:
		return val.String()
	case dbtype.LocalTime:
		return val.String()
	case dbtype.Time:
		return val.String()
	case dbtype.Duration:
		return val.String()
	}
	return v
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}
