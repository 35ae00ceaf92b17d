package vectorstore

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrEmptyCorpus = errors.New("corpus contains no passages")

type corpusFile struct {
	Source       string          `yaml:"source"`
	Jurisdiction string          `yaml:"jurisdiction"`
	Passages     []corpusPassage `yaml:"passages"`
}

type corpusPassage struct {
	Reference    string `yaml:"reference"`
	Jurisdiction string `yaml:"jurisdiction"`
	Content      string `yaml:"content"`
}

// LoadCorpus reads a regulation corpus in YAML. Passages inherit the file's
// jurisdiction unless they set their own. Embeddings are left empty.
func LoadCorpus(r io.Reader) ([]Passage, error) {
	var file corpusFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCorpus
		}
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if strings.TrimSpace(file.Source) == "" {
		return nil, fmt.Errorf("corpus source is required")
	}

	passages := make([]Passage, 0, len(file.Passages))
	for i, p := range file.Passages {
		content := strings.TrimSpace(p.Content)
		if content == "" {
			continue
		}
		if p.Reference == "" {
			return nil, fmt.Errorf("passage %d: reference is required", i+1)
		}
		jurisdiction := p.Jurisdiction
		if jurisdiction == "" {
			jurisdiction = file.Jurisdiction
		}
		passages = append(passages, Passage{
			Source:       file.Source,
			Reference:    p.Reference,
			Jurisdiction: jurisdiction,
			Content:      content,
		})
	}
	if len(passages) == 0 {
		return nil, ErrEmptyCorpus
	}
	return passages, nil
}
