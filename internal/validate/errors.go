package validate

import (
	"sort"
	"strings"
)

// Errors is the local, pre-network validation failure keyed by field id.
type Errors struct {
	Fields map[string]string
}

func (e *Errors) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Fields[id])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
