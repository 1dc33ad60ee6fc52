package socket

import (
	"sort"

	"github.com/google/uuid"
)

func generateID() string {
	return uuid.NewString()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
