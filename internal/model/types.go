package model

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// Layout is "nchw" or "nhwc".
	Layout     string `json:"layout"`
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
	// Normalize is "unit" for [0,1] pixels or "symmetric" for [-1,1].
	Normalize string `json:"normalize"`
}

// Prediction is one class score, in the order the model emits them.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float32 `json:"probability"`
}

func (m *Metadata) applyDefaults() {
	if m.Layout == "" {
		m.Layout = LayoutNCHW
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Normalize == "" {
		m.Normalize = NormalizeUnit
	}
}
