package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

var sentenceEnd = regexp.MustCompile(`[.!?]['")\]]?\s`)

// Chunker splits document text into bounded, overlapping chunks. Budgets
// are in tokens of the cl100k_base encoding; before cutting, the chunker
// searches backward within a lookback window for a paragraph break, then a
// sentence end, then a word boundary, so no chunk splits mid-word or
// mid-sentence when avoidable.
type Chunker struct {
	config  model.ChunkingConfig
	encoder *tiktoken.Tiktoken
}

// NewChunker creates a chunker with the given configuration. The tiktoken
// encoding data is loaded once here, not per call.
func NewChunker(config model.ChunkingConfig) (*Chunker, error) {
	if config.ChunkSize <= 0 {
		return nil, helper.NewError("chunker configuration", fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize))
	}
	if config.Overlap < 0 || config.Overlap >= config.ChunkSize {
		return nil, helper.NewError("chunker configuration", fmt.Errorf("overlap must be in [0, chunk size), got %d", config.Overlap))
	}
	if config.MaxChunkTokens < config.ChunkSize {
		return nil, helper.NewError("chunker configuration", fmt.Errorf("max chunk tokens %d below chunk size %d", config.MaxChunkTokens, config.ChunkSize))
	}

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, helper.NewError("load tiktoken encoding", err)
	}

	return &Chunker{
		config:  config,
		encoder: encoder,
	}, nil
}

// CountTokens returns the token count of a text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// ChunkText splits text into chunks of at most ChunkSize tokens, each chunk
// starting Overlap tokens before the previous chunk's end. A single token
// run longer than the budget is hard-cut rather than looping forever.
func (c *Chunker) ChunkText(text string) (*model.ChunkingResult, error) {
	tokens := c.encoder.Encode(text, nil, nil)
	result := &model.ChunkingResult{
		Chunks:      []*model.Chunk{},
		TotalTokens: len(tokens),
	}

	if strings.TrimSpace(text) == "" {
		return result, nil
	}

	searchFrom := 0
	start := 0
	index := 0

	for start < len(tokens) {
		end := start + c.config.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		content := c.encoder.Decode(tokens[start:end])

		// Boundary backtracking applies only to interior cuts.
		if end < len(tokens) {
			if cut := c.findBoundary(content); cut > 0 {
				content = content[:cut]
				end = start + len(c.encoder.Encode(content, nil, nil))
			}
		}

		trimmed := strings.TrimSpace(content)
		if trimmed != "" {
			startPos := strings.Index(text[searchFrom:], trimmed)
			if startPos < 0 {
				// Decode boundaries can fall inside a rune; fall back to the
				// running offset.
				startPos = 0
			}
			startPos += searchFrom

			overlapTokens := 0
			if index > 0 {
				overlapTokens = c.config.Overlap
			}

			result.Chunks = append(result.Chunks, &model.Chunk{
				ChunkIndex:    index,
				Content:       trimmed,
				TokenCount:    end - start,
				OverlapTokens: overlapTokens,
				StartPos:      startPos,
				EndPos:        startPos + len(trimmed),
				Metadata:      model.Metadata{},
			})
			index++
			searchFrom = startPos + 1
		}

		if end >= len(tokens) {
			break
		}

		next := end - c.config.Overlap
		if next <= start {
			// Overlap would stall on a degenerate chunk; move forward.
			next = start + 1
		}
		start = next
	}

	if err := c.validate(result); err != nil {
		return nil, err
	}

	return result, nil
}

// findBoundary returns the byte offset to cut content at, or 0 when no
// acceptable boundary exists within the lookback window. Paragraph breaks
// beat sentence ends beat word boundaries.
func (c *Chunker) findBoundary(content string) int {
	// Tokens average around four bytes of English text.
	lookback := c.config.LookbackTokens * 4
	floor := len(content) - lookback
	if floor < 0 {
		floor = 0
	}

	if c.config.PreserveParagraphs {
		if idx := strings.LastIndex(content, "\n\n"); idx > floor {
			return idx
		}
	}

	if c.config.PreserveSentences {
		tail := content[floor:]
		matches := sentenceEnd.FindAllStringIndex(tail, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			if floor+matches[i][1] < len(content) {
				return floor + matches[i][1]
			}
		}
	}

	if idx := strings.LastIndexAny(content, " \t\n"); idx > floor {
		return idx
	}

	return 0
}

// validate enforces the chunking contract: no empty chunks, contiguous
// ordinals, no chunk above the hard ceiling.
func (c *Chunker) validate(result *model.ChunkingResult) error {
	for i, chunk := range result.Chunks {
		if chunk.ChunkIndex != i {
			return helper.NewError("chunk validation", fmt.Errorf("ordinal gap: chunk %d has index %d", i, chunk.ChunkIndex))
		}
		if strings.TrimSpace(chunk.Content) == "" {
			return helper.NewError("chunk validation", fmt.Errorf("chunk %d is empty", i))
		}
		if chunk.TokenCount > c.config.MaxChunkTokens {
			return helper.NewError("chunk validation", fmt.Errorf("chunk %d has %d tokens, ceiling is %d", i, chunk.TokenCount, c.config.MaxChunkTokens))
		}
	}
	return nil
}
