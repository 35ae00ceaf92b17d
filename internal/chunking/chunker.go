// Package chunking splits extracted document text into overlapping segments
// sized for embedding.
package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidConfig = errors.New("invalid chunk configuration")

// Config controls how text is split. Sizes are measured in characters (runes).
type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	MinChunkSize     int
	RespectSentences bool
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:        512,
		ChunkOverlap:     50,
		MinChunkSize:     20,
		RespectSentences: true,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	case c.ChunkOverlap < 0:
		return fmt.Errorf("%w: chunk overlap must be non-negative", ErrInvalidConfig)
	case c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("%w: chunk overlap must be less than chunk size", ErrInvalidConfig)
	case c.MinChunkSize <= 0:
		return fmt.Errorf("%w: minimum chunk size must be positive", ErrInvalidConfig)
	case c.MinChunkSize > c.ChunkSize:
		return fmt.Errorf("%w: minimum chunk size must not exceed chunk size", ErrInvalidConfig)
	}
	return nil
}

// Chunk is a trimmed span of the source text. StartChar and EndChar are rune
// offsets into the text passed to Split.
type Chunk struct {
	Position  int
	Content   string
	StartChar int
	EndChar   int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() Config {
	return c.cfg
}

// Split returns the chunks of text in order. Whitespace-only input yields none.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	var chunks []Chunk
	pos := 0

	for pos < n {
		end := pos + c.cfg.ChunkSize
		if end > n {
			end = n
		}

		if end < n && c.cfg.RespectSentences {
			if b := c.sentenceBoundary(runes, pos, end); b > 0 {
				end = b
			}
		}

		if chunk, ok := trimmedSpan(runes, pos, end); ok {
			chunk.Position = len(chunks)
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}

		next := end - c.cfg.ChunkOverlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// sentenceBoundary finds the last sentence end in runes[pos:end] that lies more
// than MinChunkSize after pos. It returns 0 when there is none.
func (c *Chunker) sentenceBoundary(runes []rune, pos, end int) int {
	floor := pos + c.cfg.MinChunkSize
	for i := end - 1; i >= pos; i-- {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < end && isCloser(runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			continue
		}
		if j <= floor {
			return 0
		}
		return j
	}
	return 0
}

func trimmedSpan(runes []rune, start, end int) (Chunk, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return Chunk{}, false
	}
	return Chunk{
		Content:   string(runes[start:end]),
		StartChar: start,
		EndChar:   end,
	}, true
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’':
		return true
	}
	return false
}
