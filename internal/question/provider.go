// Package question supplies interview questions from fixed per-category
// pools. The built-in pools are embedded; additional pools can be loaded
// from JSON files at startup.
package question

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/voxhire/voxhire/internal/model"
)

//go:embed bank/*.json
var bankFS embed.FS

// Provider selects questions for a session from its category pools.
// A Provider is immutable after construction and safe for concurrent use.
type Provider struct {
	pools map[model.Category][]model.Question
}

// NewProvider builds a provider from the embedded question bank.
func NewProvider() (*Provider, error) {
	p := &Provider{pools: make(map[model.Category][]model.Question)}

	entries, err := bankFS.ReadDir("bank")
	if err != nil {
		return nil, fmt.Errorf("read bank dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := bankFS.ReadFile("bank/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read bank file %s: %w", e.Name(), err)
		}
		if err := p.addPool(data); err != nil {
			return nil, fmt.Errorf("parse bank file %s: %w", e.Name(), err)
		}
	}
	return p, nil
}

// LoadFiles merges question pools from the given JSON files on top of the
// embedded bank. Each file holds an array of questions.
func (p *Provider) LoadFiles(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := p.addPool(data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		slog.Info("loaded question file", "path", path)
	}
	return nil
}

func (p *Provider) addPool(data []byte) error {
	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return err
	}
	for _, q := range questions {
		if !q.Category.Valid() {
			return fmt.Errorf("question %d: unknown category %q", q.ID, q.Category)
		}
		if q.Text == "" {
			return fmt.Errorf("question %d: empty text", q.ID)
		}
		p.pools[q.Category] = append(p.pools[q.Category], q)
	}
	return nil
}

// PoolSize returns the number of questions available in a category.
func (p *Provider) PoolSize(c model.Category) int {
	return len(p.pools[c])
}

// Select returns an ordered question list for a session: the requested
// count is ceiling-divided across the requested categories, each category's
// share is drawn without duplication from its shuffled pool, and the
// concatenated result is truncated to count. Categories with small pools
// under-fill; the result is never longer than count. Selection is
// deterministic for a fixed r.
func (p *Provider) Select(r *rand.Rand, categories []model.Category, count int, difficulty model.Difficulty) ([]model.Question, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories selected")
	}
	if count <= 0 {
		return nil, fmt.Errorf("question count must be positive, got %d", count)
	}

	perCategory := (count + len(categories) - 1) / len(categories)

	var selected []model.Question
	for _, c := range categories {
		pool := p.tierPool(c, difficulty)
		shuffled := make([]model.Question, len(pool))
		copy(shuffled, pool)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		n := min(perCategory, len(shuffled))
		selected = append(selected, shuffled[:n]...)
	}

	if len(selected) > count {
		selected = selected[:count]
	}
	return selected, nil
}

// Adaptive returns one extra question at the given difficulty tier, drawn
// from the session's categories and never duplicating an already-issued ID.
// ok is false when every matching question has been issued already.
func (p *Provider) Adaptive(r *rand.Rand, categories []model.Category, tier model.Difficulty, issued map[int64]bool) (model.Question, bool) {
	var candidates []model.Question
	for _, c := range categories {
		for _, q := range p.tierPool(c, tier) {
			if !issued[q.ID] {
				candidates = append(candidates, q)
			}
		}
	}
	if len(candidates) == 0 {
		return model.Question{}, false
	}
	return candidates[r.IntN(len(candidates))], true
}

// tierPool returns the category pool filtered to the difficulty hint,
// falling back to the whole pool when the category has no questions at
// that tier. An empty hint means no filtering.
func (p *Provider) tierPool(c model.Category, difficulty model.Difficulty) []model.Question {
	pool := p.pools[c]
	if difficulty == "" {
		return pool
	}
	var filtered []model.Question
	for _, q := range pool {
		if q.Difficulty == difficulty {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) == 0 {
		return pool
	}
	return filtered
}
