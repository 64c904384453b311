//go:build onnxruntime

package ner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// nativeSession binds fixed [1, seqLen] tensors once; shorter inputs are
// padded with a zero attention mask.
type nativeSession struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	inputIDs  *ort.Tensor[int64]
	attention *ort.Tensor[int64]
	output    *ort.Tensor[float32]
	seqLen    int
	numLabels int
}

func openNativeSession(modelPath string, seqLen, numLabels int) (Session, error) {
	if seqLen <= 0 || numLabels <= 0 {
		return nil, errors.New("native session needs a sequence length and label count")
	}
	lib := sharedLibraryPath(filepath.Dir(modelPath))
	if lib == "" {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	ort.SetSharedLibraryPath(lib)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids: %w", err)
	}
	attention, err := ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(numLabels)))
	if err != nil {
		inputIDs.Destroy()
		attention.Destroy()
		return nil, fmt.Errorf("allocate logits: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attention},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		inputIDs.Destroy()
		attention.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &nativeSession{
		session:   session,
		inputIDs:  inputIDs,
		attention: attention,
		output:    output,
		seqLen:    seqLen,
		numLabels: numLabels,
	}, nil
}

func (s *nativeSession) Run(ctx context.Context, inputIDs, attentionMask, _ []int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(inputIDs)
	if n > s.seqLen {
		return nil, fmt.Errorf("sequence of %d tokens exceeds %d", n, s.seqLen)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.inputIDs.GetData()
	mask := s.attention.GetData()
	clear(ids)
	clear(mask)
	copy(ids, inputIDs)
	copy(mask, attentionMask)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	raw := s.output.GetData()
	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, s.numLabels)
		copy(row, raw[i*s.numLabels:(i+1)*s.numLabels])
		rows[i] = row
	}
	return rows, nil
}

func (s *nativeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	errs = append(errs, s.inputIDs.Destroy(), s.attention.Destroy(), s.output.Destroy())
	return errors.Join(errs...)
}

func sharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{"libonnxruntime.so", "libonnxruntime.dylib", "onnxruntime.dll"}
	dirs := []string{modelDir, filepath.Join(modelDir, "lib"), "/usr/local/lib", "/usr/lib", "/opt/homebrew/lib"}
	for _, dir := range dirs {
		for _, name := range names {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
