//go:build !onnxruntime

package ner

import "testing"

func TestNativeSessionNeedsBuildTag(t *testing.T) {
	t.Setenv(BackendEnv, "native")
	if _, err := OpenSession("/tmp/model.onnx", 8, 3); err == nil {
		t.Fatal("expected error")
	}
}
