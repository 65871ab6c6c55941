package forecast

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelConfig describes the exported quantile model. The model takes a
// [1, Window] tensor of prices relative to the last close (p/last - 1) and
// returns [1, MaxHorizon, 3] relative quantiles (Q10, Q50, Q90) per step.
type ModelConfig struct {
	Path        string
	LibraryPath string
	Window      int
	MaxHorizon  int
	InputName   string
	OutputName  string
}

func DefaultModelConfig(path string) ModelConfig {
	return ModelConfig{
		Path:       path,
		Window:     200,
		MaxHorizon: 15,
		InputName:  "input",
		OutputName: "output",
	}
}

var (
	ortOnce sync.Once
	ortErr  error
)

// InitializeORT loads the onnxruntime shared library once per process.
func InitializeORT(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			libPath = "/usr/lib/libonnxruntime.so"
			if runtime.GOOS == "windows" {
				libPath = "onnxruntime.dll"
			} else if runtime.GOOS == "darwin" {
				libPath = "libonnxruntime.dylib"
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// Model runs the quantile forecaster through onnxruntime. The session
// reuses bound tensors, so runs are serialized.
type Model struct {
	mu      sync.Mutex
	cfg     ModelConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewModel(cfg ModelConfig) (*Model, error) {
	if err := InitializeORT(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %v", err)
	}

	inputShape := ort.NewShape(1, int64(cfg.Window))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %v", err)
	}

	outputShape := ort.NewShape(1, int64(cfg.MaxHorizon), 3)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %v", err)
	}

	session, err := ort.NewAdvancedSession(cfg.Path,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session: %v", err)
	}

	return &Model{
		cfg:     cfg,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Opener adapts NewModel to the Service loader signature.
func (cfg ModelConfig) Opener() Opener {
	return func() (Backend, error) {
		return NewModel(cfg)
	}
}

func (m *Model) Forecast(ctx context.Context, window []float64, horizons []int) (Forecast, error) {
	if len(window) != m.cfg.Window {
		return Forecast{}, fmt.Errorf("window has %d prices, model expects %d", len(window), m.cfg.Window)
	}
	last := window[len(window)-1]
	if last == 0 {
		return Forecast{}, fmt.Errorf("last price is zero")
	}
	for _, h := range horizons {
		if h < 1 || h > m.cfg.MaxHorizon {
			return Forecast{}, fmt.Errorf("horizon %d outside 1..%d", h, m.cfg.MaxHorizon)
		}
	}
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.input.GetData()
	for i, p := range window {
		data[i] = float32(p/last - 1)
	}
	if err := m.session.Run(); err != nil {
		return Forecast{}, fmt.Errorf("inference failed: %v", err)
	}
	out := m.output.GetData()

	f := Forecast{
		Median: make([]float64, len(horizons)),
		Width:  make([]float64, len(horizons)),
	}
	for i, h := range horizons {
		base := (h - 1) * 3
		q10, q50, q90 := float64(out[base]), float64(out[base+1]), float64(out[base+2])
		f.Median[i] = last * (1 + q50)
		f.Width[i] = last * (q90 - q10)
	}
	return f, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}
