package ner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"datadetector/internal/detect"
)

// PythonEnv names the interpreter used by the python runtime.
const PythonEnv = "DATADETECTOR_PYTHON"

// pythonSession keeps one interpreter alive per model and exchanges one JSON
// line per Run. A dead or canceled worker is restarted on the next call.
type pythonSession struct {
	modelPath string
	python    string
	seqLen    int
	numLabels int

	mu     sync.Mutex
	worker *pythonWorker
}

type pythonWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailBuffer
}

type pythonRequest struct {
	InputIDs      []int64 `json:"input_ids"`
	AttentionMask []int64 `json:"attention_mask"`
	TokenTypeIDs  []int64 `json:"token_type_ids"`
}

type pythonResponse struct {
	Logits [][]float32 `json:"logits"`
	Error  string      `json:"error"`
}

func newPythonSession(modelPath string, seqLen, numLabels int) *pythonSession {
	python := os.Getenv(PythonEnv)
	if python == "" {
		python = "python3"
	}
	return &pythonSession{modelPath: modelPath, python: python, seqLen: seqLen, numLabels: numLabels}
}

func (s *pythonSession) Run(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([][]float32, error) {
	if s.seqLen > 0 && len(inputIDs) > s.seqLen {
		return nil, fmt.Errorf("python inference: %d tokens exceed sequence length %d", len(inputIDs), s.seqLen)
	}
	payload, err := json.Marshal(pythonRequest{
		InputIDs:      inputIDs,
		AttentionMask: attentionMask,
		TokenTypeIDs:  tokenTypeIDs,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker == nil {
		w, err := startPythonWorker(s.python, s.modelPath)
		if err != nil {
			return nil, err
		}
		s.worker = w
	}
	w := s.worker

	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if _, err := w.stdin.Write(append(payload, '\n')); err != nil {
			done <- result{err: err}
			return
		}
		line, err := w.stdout.ReadBytes('\n')
		done <- result{line: line, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		s.stopLocked()
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		tail := w.stderr.String()
		s.stopLocked()
		if tail != "" {
			return nil, fmt.Errorf("python inference: %w: %s", res.err, tail)
		}
		return nil, fmt.Errorf("python inference: %w", res.err)
	}

	var resp pythonResponse
	if err := json.Unmarshal(res.line, &resp); err != nil {
		return nil, fmt.Errorf("parse python inference output: %w", err)
	}
	if resp.Error != "" {
		return nil, &detect.Error{Kind: detect.DetectionFailed, Backend: "ner", Err: errors.New(resp.Error)}
	}
	return s.checkLogits(resp.Logits, len(inputIDs))
}

func (s *pythonSession) checkLogits(rows [][]float32, tokens int) ([][]float32, error) {
	if len(rows) != tokens {
		return nil, fmt.Errorf("python inference: got %d logit rows for %d tokens", len(rows), tokens)
	}
	if s.numLabels <= 0 {
		return rows, nil
	}
	for i, row := range rows {
		if len(row) != s.numLabels {
			return nil, fmt.Errorf("python inference: row %d has %d logits, want %d labels", i, len(row), s.numLabels)
		}
	}
	return rows, nil
}

// Close ends the worker by closing its stdin.
func (s *pythonSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker == nil {
		return nil
	}
	w := s.worker
	s.worker = nil
	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
	return nil
}

func (s *pythonSession) stopLocked() {
	if s.worker == nil {
		return
	}
	w := s.worker
	s.worker = nil
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}

func startPythonWorker(python, modelPath string) (*pythonWorker, error) {
	cmd := exec.Command(python, "-u", "-c", pythonInferScript, modelPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start python inference: %w", err)
	}
	return &pythonWorker{cmd: cmd, stdin: stdin, stdout: bufio.NewReaderSize(stdout, 1<<16), stderr: stderr}, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// pythonInferScript loads the model once and answers one JSON line per
// request line on stdin.
const pythonInferScript = `
import json
import sys

def reply(obj):
    sys.stdout.write(json.dumps(obj) + "\n")
    sys.stdout.flush()

try:
    import numpy as np
    import onnxruntime as ort
    sess = ort.InferenceSession(sys.argv[1], providers=["CPUExecutionProvider"])
    names = [i.name for i in sess.get_inputs()]
    setup_error = None
except Exception as exc:
    setup_error = "onnxruntime setup failed: %s" % exc

for line in sys.stdin:
    if not line.strip():
        continue
    if setup_error:
        reply({"error": setup_error})
        continue
    try:
        req = json.loads(line)
        seq = len(req["input_ids"])
        by_kind = {
            "input_ids": np.array([req["input_ids"]], dtype=np.int64),
            "attention_mask": np.array([req["attention_mask"]], dtype=np.int64),
            "token_type_ids": np.array([req["token_type_ids"]], dtype=np.int64),
        }
        feed = {}
        for name in names:
            feed[name] = np.zeros((1, seq), dtype=np.int64)
            for kind, arr in by_kind.items():
                if kind in name:
                    feed[name] = arr
        out = sess.run(None, feed)[0][0]
        reply({"logits": out.astype(np.float32).tolist()})
    except Exception as exc:
        reply({"error": str(exc)})
`
