package evaluator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Gold maps a query string to the ids of its relevant documents.
type Gold map[string][]string

// ParseGold decodes a gold mapping. JSON may carry // and /* */ comments and
// trailing commas.
func ParseGold(data []byte, format string) (Gold, error) {
	var gold Gold
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &gold); err != nil {
			return nil, fmt.Errorf("parsing gold yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &gold); err != nil {
			return nil, fmt.Errorf("parsing gold json: %w", err)
		}
	}
	if gold == nil {
		gold = Gold{}
	}
	return gold, nil
}

// LoadGold reads a gold file, choosing the decoder by extension.
func LoadGold(path string) (Gold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gold file %s: %w", path, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	gold, err := ParseGold(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gold, nil
}

// Queries returns the gold queries in ascending order.
func (g Gold) Queries() []string {
	queries := make([]string, 0, len(g))
	for q := range g {
		queries = append(queries, q)
	}
	sort.Strings(queries)
	return queries
}

// Validate checks that every judged document is loaded.
func (g Gold) Validate(c *corpus.Corpus) error {
	for _, q := range g.Queries() {
		for _, id := range g[q] {
			if !c.Contains(id) {
				return apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound,
					"gold query %q references %q, which is not in the corpus", q, id)
			}
		}
	}
	return nil
}
