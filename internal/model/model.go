package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Model wraps one ONNX classification session. Predict may be called from
// several goroutines; calls are serialized because the tensors are shared.
type Model struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// SetSharedLibraryPath points the runtime at a specific onnxruntime shared
// library. It must be called before Load.
func SetSharedLibraryPath(path string) {
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
}

// Load initializes the ONNX environment and opens the model at modelPath,
// shaped by the metadata JSON at metadataPath.
func Load(modelPath, metadataPath string) (*Model, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	metadata, err := parseMetadata(metaFile)
	if err != nil {
		return nil, err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func parseMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()

	if len(metadata.Classes) == 0 {
		return metadata, errors.New("metadata lists no classes")
	}
	if metadata.ImageSize <= 0 {
		return metadata, fmt.Errorf("invalid image_size %d", metadata.ImageSize)
	}
	switch metadata.Layout {
	case LayoutNCHW, LayoutNHWC:
	default:
		return metadata, fmt.Errorf("unsupported layout %q", metadata.Layout)
	}
	switch metadata.Normalize {
	case NormalizeUnit, NormalizeSymmetric:
	default:
		return metadata, fmt.Errorf("unsupported normalize mode %q", metadata.Normalize)
	}

	want := int64(channels * metadata.ImageSize * metadata.ImageSize)
	if got := shapeSize(metadata.InputShape); got != want {
		return metadata, fmt.Errorf("input_shape %v holds %d values, image_size %d needs %d",
			metadata.InputShape, got, metadata.ImageSize, want)
	}
	if got := shapeSize(metadata.OutputShape); got < int64(len(metadata.Classes)) {
		return metadata, fmt.Errorf("output_shape %v smaller than %d classes",
			metadata.OutputShape, len(metadata.Classes))
	}
	return metadata, nil
}

func shapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// TotalClasses returns the number of classes the model can emit.
func (m *Model) TotalClasses() int {
	return len(m.Metadata.Classes)
}

// Predict scores img against every class. The result keeps the model's
// class order.
func (m *Model) Predict(img image.Image) ([]Prediction, error) {
	inputData := Preprocess(img, m.Metadata)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("model is closed")
	}

	copy(m.inputTensor.GetData(), inputData)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return predictions(m.outputTensor.GetData(), m.Metadata.Classes), nil
}

func predictions(output []float32, classes []string) []Prediction {
	out := make([]Prediction, 0, len(classes))
	for i, val := range output {
		if i >= len(classes) {
			break
		}
		out = append(out, Prediction{ClassName: classes[i], Probability: val})
	}
	return out
}

func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
		m.inputTensor = nil
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
		m.outputTensor = nil
	}
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
		ort.DestroyEnvironment()
	}
}
