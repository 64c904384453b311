//go:build !onnxruntime

package ner

import "fmt"

func openNativeSession(string, int, int) (Session, error) {
	return nil, fmt.Errorf("native ONNX backend requires build tag 'onnxruntime'")
}
