package pipeline

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

const keyPlaceholder = "{0}"

// KeyGen derives a key from a base key.
type KeyGen interface {
	Make(base domain.Key) domain.Key
}

// PatternKeyGen substitutes the base key for every "{0}" in the pattern.
type PatternKeyGen string

// Make applies the pattern.
func (p PatternKeyGen) Make(base domain.Key) domain.Key {
	return domain.Key(strings.ReplaceAll(string(p), keyPlaceholder, string(base)))
}

// DefaultEstimatorKeyGen names the fitted estimator after its pipeline.
var DefaultEstimatorKeyGen KeyGen = PatternKeyGen(keyPlaceholder + "_estimator")

// NewModelKey generates a key for a model without an explicit id.
func NewModelKey(prefix string) domain.Key {
	return domain.Key(prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
