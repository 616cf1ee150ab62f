package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// ExtractedEntity is one entity mention as the LLM reports it, before
// normalization and merging.
type ExtractedEntity struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases,omitempty"`
}

// ExtractedRelation is one relation triple as the LLM reports it. Head and
// Tail refer to entity names within the same extraction.
type ExtractedRelation struct {
	Head       string  `json:"head"`
	Relation   string  `json:"relation"`
	Tail       string  `json:"tail"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Extraction is the validated output of one chunk extraction.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// GraphExtractor pulls entities and relations out of chunk text with an
// LLM prompt constrained to the fixed kind and relation vocabularies. Model
// output is parsed against a strict schema and rejected on shape mismatch
// rather than trusted.
type GraphExtractor struct {
	client CompletionClient
	config model.ExtractionConfig
	logger *slog.Logger
}

// NewGraphExtractor creates an extractor over a completion client.
func NewGraphExtractor(client CompletionClient, config model.ExtractionConfig, logger *slog.Logger) (*GraphExtractor, error) {
	if client == nil {
		return nil, helper.NewError("graph extractor", fmt.Errorf("completion client is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GraphExtractor{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

const extractionPromptTemplate = `Extract named entities and their relationships from the text below.

Allowed entity kinds: %s
Allowed relation labels: %s

Respond with JSON only, no prose, in exactly this shape:
{"entities":[{"name":"...","kind":"...","confidence":0.0,"aliases":["..."]}],"relations":[{"head":"...","relation":"...","tail":"...","confidence":0.0,"evidence":"..."}]}

Rules:
- confidence is your certainty in [0,1]
- head and tail must be names from the entities list
- evidence is a short quote from the text supporting the relation
- return {"entities":[],"relations":[]} if nothing is found

Text:
%s`

// ExtractFromChunk runs one extraction call with retries and schema
// validation. Entities and relations below the confidence floor are
// dropped; relations with a label outside the vocabulary fall back to
// related_to.
func (e *GraphExtractor) ExtractFromChunk(ctx context.Context, content string) (*Extraction, error) {
	prompt := e.buildPrompt(content)

	response, err := helper.RetryWithContext(ctx, e.config.MaxAttempts, e.config.Backoff, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		defer cancel()
		return e.client.Complete(callCtx, prompt)
	})
	if err != nil {
		return nil, helper.NewError("extraction call", err)
	}

	extraction, err := e.parseResponse(response)
	if err != nil {
		return nil, helper.NewError("parse extraction", err)
	}

	return e.filter(extraction), nil
}

func (e *GraphExtractor) buildPrompt(content string) string {
	kinds := make([]string, len(model.EntityKinds))
	for i, kind := range model.EntityKinds {
		kinds[i] = string(kind)
	}
	relations := make([]string, len(model.Relations))
	for i, relation := range model.Relations {
		relations[i] = string(relation)
	}

	return fmt.Sprintf(extractionPromptTemplate, strings.Join(kinds, ", "), strings.Join(relations, ", "), content)
}

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseResponse decodes the model output against the extraction schema.
// Unknown fields are a schema violation, not something to silently accept.
func (e *GraphExtractor) parseResponse(response string) (*Extraction, error) {
	response = strings.TrimSpace(response)
	if match := codeFence.FindStringSubmatch(response); match != nil {
		response = match[1]
	}

	// Some models wrap the JSON in prose despite instructions.
	if start := strings.Index(response, "{"); start > 0 {
		response = response[start:]
	}
	if end := strings.LastIndex(response, "}"); end >= 0 && end < len(response)-1 {
		response = response[:end+1]
	}

	decoder := json.NewDecoder(strings.NewReader(response))
	decoder.DisallowUnknownFields()

	extraction := &Extraction{}
	if err := decoder.Decode(extraction); err != nil {
		return nil, fmt.Errorf("response does not match extraction schema: %w", err)
	}

	return extraction, nil
}

// filter enforces the vocabularies and the confidence floor.
func (e *GraphExtractor) filter(raw *Extraction) *Extraction {
	filtered := &Extraction{}
	kept := make(map[string]bool)

	for _, entity := range raw.Entities {
		name := strings.TrimSpace(entity.Name)
		if name == "" || entity.Confidence < e.config.ConfidenceFloor {
			continue
		}
		if !model.ValidEntityKind(model.EntityKind(entity.Kind)) {
			e.logger.Debug("Dropping entity with unknown kind", "name", name, "kind", entity.Kind)
			continue
		}
		entity.Name = name
		entity.Confidence = clamp01(entity.Confidence)
		filtered.Entities = append(filtered.Entities, entity)
		kept[NormalizeName(name)] = true
	}

	for _, relation := range raw.Relations {
		if relation.Confidence < e.config.ConfidenceFloor {
			continue
		}
		if !kept[NormalizeName(relation.Head)] || !kept[NormalizeName(relation.Tail)] {
			continue
		}
		if !model.ValidRelation(model.Relation(relation.Relation)) {
			relation.Relation = string(model.RelationRelatedTo)
		}
		relation.Confidence = clamp01(relation.Confidence)
		filtered.Relations = append(filtered.Relations, relation)
	}

	return filtered
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var corporateSuffixes = []string{
	"incorporated", "corporation", "limited", "company",
	"inc", "corp", "ltd", "llc", "gmbh", "plc", "co",
}

var namePunctuation = regexp.MustCompile(`[.,;:!?'"()\[\]{}]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeName produces the dedup key for an entity name: lowercase,
// punctuation stripped, corporate suffixes removed, whitespace collapsed.
func NormalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = namePunctuation.ReplaceAllString(normalized, "")
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")

	for changed := true; changed; {
		changed = false
		for _, suffix := range corporateSuffixes {
			if strings.HasSuffix(normalized, " "+suffix) {
				normalized = strings.TrimSpace(strings.TrimSuffix(normalized, " "+suffix))
				changed = true
			}
		}
	}

	return normalized
}
