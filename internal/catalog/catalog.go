// Package catalog loads the seed answers served by a fresh answer store.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/folioqa/internal/storage"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Answers []entry `yaml:"answers"`
}

type entry struct {
	Title      string         `yaml:"title"`
	Content    string         `yaml:"content"`
	Category   string         `yaml:"category"`
	Keywords   []string       `yaml:"keywords"`
	AnswerType string         `yaml:"answer_type"`
	Data       map[string]any `yaml:"data"`
}

// Default returns the built-in catalog.
func Default() ([]storage.NewAnswer, error) {
	answers, err := Parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded catalog: %w", err)
	}
	return answers, nil
}

// Load reads a catalog from a YAML file. An empty path returns the built-in catalog.
func Load(path string) ([]storage.NewAnswer, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	answers, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return answers, nil
}

// Parse decodes a YAML catalog document. Entry order is preserved.
func Parse(data []byte) ([]storage.NewAnswer, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	answers := make([]storage.NewAnswer, 0, len(f.Answers))
	for i, e := range f.Answers {
		if e.Title == "" {
			return nil, fmt.Errorf("answer %d: title is required", i)
		}
		if e.Content == "" {
			return nil, fmt.Errorf("answer %d (%s): content is required", i, e.Title)
		}

		var raw json.RawMessage
		if len(e.Data) > 0 {
			b, err := json.Marshal(e.Data)
			if err != nil {
				return nil, fmt.Errorf("answer %d (%s): encoding data: %w", i, e.Title, err)
			}
			raw = b
		}

		answers = append(answers, storage.NewAnswer{
			Title:      e.Title,
			Content:    e.Content,
			Category:   e.Category,
			Keywords:   e.Keywords,
			AnswerType: e.AnswerType,
			Data:       raw,
		})
	}
	return answers, nil
}

// Store is the subset of the answer store needed for seeding.
type Store interface {
	CountAnswers(ctx context.Context) (int, error)
	CreateAnswer(ctx context.Context, in storage.NewAnswer) (storage.Answer, error)
}

// Seed inserts answers in order when the store holds no answers yet, so a
// persistent store is seeded once and restarts do not duplicate the catalog.
// It returns the number of answers inserted.
func Seed(ctx context.Context, s Store, answers []storage.NewAnswer) (int, error) {
	n, err := s.CountAnswers(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting answers: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for i, a := range answers {
		if _, err := s.CreateAnswer(ctx, a); err != nil {
			return i, fmt.Errorf("seeding %q: %w", a.Title, err)
		}
	}
	return len(answers), nil
}
