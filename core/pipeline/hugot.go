package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

const sentenceTransformerModel = "sentence-transformers/all-MiniLM-L6-v2"
const sentenceTransformerDim = 384

// HugotEmbedder runs a local sentence transformer through hugot. No API key
// and no network at inference time, at the cost of a one-time model
// download.
type HugotEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewHugotEmbedder downloads the all-MiniLM-L6-v2 model if needed and
// prepares a feature extraction pipeline producing 384-dimensional vectors.
func NewHugotEmbedder() (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(sentenceTransformerModel, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewError("create sentence pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewError("create sentence pipeline", err)
	}

	return &HugotEmbedder{
		session:  session,
		pipeline: sentencePipeline,
	}, nil
}

// EmbedTexts embeds the texts in one pipeline run.
func (e *HugotEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, helper.NewError("run embedding pipeline", err)
	}

	return result.Embeddings, nil
}

// Dimension returns the embedding dimension.
func (e *HugotEmbedder) Dimension() int {
	return sentenceTransformerDim
}

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}

// NERExtractor extracts entities with a local token classification model.
// It yields no relations; use it where LLM extraction is unavailable or
// too expensive.
type NERExtractor struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
}

// NewNERExtractor downloads the distilbert NER model if needed and prepares
// a token classification pipeline.
func NewNERExtractor() (*NERExtractor, error) {
	modelPath, err := helper.PrepareModel("KnightsAnalytics/distilbert-NER", "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewError("create NER pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewError("create NER pipeline", err)
	}

	return &NERExtractor{
		session:  session,
		pipeline: nerPipeline,
	}, nil
}

// ExtractFromChunk runs NER over the chunk and maps the BIO-tagged labels
// into the entity kind vocabulary.
func (e *NERExtractor) ExtractFromChunk(ctx context.Context, content string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.pipeline.RunPipeline([]string{content})
	if err != nil {
		return nil, helper.NewError("run NER pipeline", err)
	}

	extraction := &Extraction{}
	if len(result.Entities) == 0 {
		return extraction, nil
	}

	for _, entity := range result.Entities[0] {
		name := strings.TrimSpace(entity.Word)
		if name == "" {
			continue
		}

		kind, ok := nerLabelKind(entity.Entity)
		if !ok {
			continue
		}

		extraction.Entities = append(extraction.Entities, ExtractedEntity{
			Name:       name,
			Kind:       string(kind),
			Confidence: float64(entity.Score),
		})
	}

	return extraction, nil
}

// Close destroys the hugot session.
func (e *NERExtractor) Close() error {
	return e.session.Destroy()
}

func nerLabelKind(label string) (model.EntityKind, bool) {
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	switch label {
	case "PER":
		return model.EntityKindPerson, true
	case "ORG":
		return model.EntityKindOrg, true
	case "LOC":
		return model.EntityKindLocation, true
	case "MISC":
		return model.EntityKindConcept, true
	default:
		return "", false
	}
}
