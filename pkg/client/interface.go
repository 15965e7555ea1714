package client

import (
	"context"

	"github.com/menta2k/icon-editor/pkg/types"
)

// VisionClient is implemented by the model backends (ollama, llama.cpp).
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
