// Package llm wraps the Vertex AI backends used by the pipeline: Gemini for
// structured generation and the text-embedding publisher model for vectors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/recruitai/screening-agent/internal/semantic"
)

// embedBatchLimit bounds instances per predict request; the API rejects
// larger batches.
const embedBatchLimit = 100

// Client talks to Vertex AI.
type Client struct {
	genai      *genai.Client
	model      *genai.GenerativeModel
	jsonModel  *genai.GenerativeModel
	prediction *aiplatform.PredictionClient
	embedPath  string
	logger     *zap.Logger
}

// NewClient dials Vertex AI in the given project and location. modelName is
// the Gemini generation model; embeddingModel is the publisher embedding
// model (for example text-embedding-004).
func NewClient(ctx context.Context, projectID, location, modelName, embeddingModel string, logger *zap.Logger) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("llm: google cloud project is required")
	}
	if location == "" {
		location = "us-central1"
	}

	gc, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := gc.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(2048)

	jsonModel := gc.GenerativeModel(modelName)
	jsonModel.SetTemperature(0.2)
	jsonModel.SetMaxOutputTokens(2048)
	jsonModel.GenerationConfig.ResponseMIMEType = "application/json"

	pc, err := aiplatform.NewPredictionClient(ctx,
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)))
	if err != nil {
		gc.Close()
		return nil, fmt.Errorf("create prediction client: %w", err)
	}

	return &Client{
		genai:      gc,
		model:      model,
		jsonModel:  jsonModel,
		prediction: pc,
		embedPath: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
			projectID, location, embeddingModel),
		logger: logger,
	}, nil
}

// GenerateContent sends a prompt to Gemini. With jsonMode the model is
// constrained to emit a JSON document.
func (c *Client) GenerateContent(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	model := c.model
	if jsonMode {
		model = c.jsonModel
	}
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("generate content: empty response")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

// EmbedBatch embeds texts with the configured embedding model, preserving
// input order. Requests are paged to the API's instance limit.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchLimit {
		end := start + embedBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		page, err := c.embedPage(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, page...)
	}
	return vectors, nil
}

func (c *Client) embedPage(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]*structpb.Value, len(texts))
	for i, text := range texts {
		v, err := structpb.NewValue(map[string]interface{}{"content": text})
		if err != nil {
			return nil, fmt.Errorf("build embed instance: %w", err)
		}
		instances[i] = v
	}

	resp, err := c.prediction.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  c.embedPath,
		Instances: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("embed predict: %w", err)
	}
	if len(resp.Predictions) != len(texts) {
		return nil, fmt.Errorf("embed predict: %d predictions for %d texts", len(resp.Predictions), len(texts))
	}

	vectors := make([][]float32, len(resp.Predictions))
	for i, pred := range resp.Predictions {
		values := pred.GetStructValue().GetFields()["embeddings"].
			GetStructValue().GetFields()["values"].GetListValue().GetValues()
		if len(values) == 0 {
			return nil, fmt.Errorf("embed predict: prediction %d has no values", i)
		}
		vec := make([]float32, len(values))
		for j, v := range values {
			vec[j] = float32(v.GetNumberValue())
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Relevance scores how related two short texts are by embedding both and
// taking their cosine similarity, shifted into [0, 1].
func (c *Client) Relevance(ctx context.Context, a, b string) (float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	cos := semantic.Cosine(vecs[0], vecs[1])
	return (cos + 1) / 2, nil
}

// Close releases both underlying clients.
func (c *Client) Close() error {
	perr := c.prediction.Close()
	gerr := c.genai.Close()
	if perr != nil {
		return perr
	}
	return gerr
}

// IsRateLimited reports whether err looks like a quota or rate-limit
// rejection from the backend.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "ResourceExhausted") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}
