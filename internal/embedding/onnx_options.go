package embedding

// defaultONNXBatchSize caps the rows sent to one ONNX Run.
const defaultONNXBatchSize = 32

type onnxSettings struct {
	batchSize int
}

// ONNXOption configures an ONNXEmbedder.
type ONNXOption func(*onnxSettings)

// WithONNXBatchSize sets how many texts go through one inference call. n <= 0 keeps the default.
func WithONNXBatchSize(n int) ONNXOption {
	return func(s *onnxSettings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func newONNXSettings(opts []ONNXOption) onnxSettings {
	s := onnxSettings{batchSize: defaultONNXBatchSize}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
