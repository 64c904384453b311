package ner

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
)

// BackendEnv selects the inference runtime: "python" (default) or "native".
const BackendEnv = "DATADETECTOR_ONNX_BACKEND"

// Session runs a token classification model. It returns one row of logits
// per input position.
type Session interface {
	Run(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([][]float32, error)
	Close() error
}

// SessionFactory opens a session for the model at modelPath emitting
// numLabels logits per position for sequences up to seqLen.
type SessionFactory func(modelPath string, seqLen, numLabels int) (Session, error)

// OpenSession picks the runtime named by BackendEnv.
func OpenSession(modelPath string, seqLen, numLabels int) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(BackendEnv))) {
	case "", "python":
		return newPythonSession(modelPath, seqLen, numLabels), nil
	case "native":
		return openNativeSession(modelPath, seqLen, numLabels)
	default:
		return nil, fmt.Errorf("unknown onnx backend %q", os.Getenv(BackendEnv))
	}
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := float64(logits[0])
	for _, l := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(probs []float64) (int, float64) {
	best, bestP := 0, -1.0
	for i, p := range probs {
		if p > bestP {
			best, bestP = i, p
		}
	}
	return best, bestP
}
