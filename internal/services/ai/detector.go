package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"catwatch/internal/config"
	"catwatch/internal/logger"
	"catwatch/internal/models"
	"catwatch/internal/services/capture"

	"gocv.io/x/gocv"
)

// ErrNetNotInitialized is returned by Infer when the model failed to load.
var ErrNetNotInitialized = errors.New("detection network not initialized")

// SSD output rows are [batch, class, confidence, x1, y1, x2, y2], coordinates normalized.
const ssdRowWidth = 7

// Detector runs an SSD MobileNet network through the OpenCV DNN module.
type Detector struct {
	net        gocv.Net
	ready      bool
	modelPath  string
	configPath string
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetector loads the network. A missing model is logged and left for
// Infer to report, so the video stream keeps running without detections.
func NewDetector(cfg config.DetectorConfig, logger *logger.Logger) *Detector {
	d := &Detector{
		modelPath:  cfg.ModelPath,
		configPath: cfg.ConfigPath,
		logger:     logger,
	}

	if err := d.initializeNet(); err != nil {
		d.logger.Warning("Could not initialize detection network: %v", err)
		return d
	}
	return d
}

func (d *Detector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}
	if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", d.configPath)
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.ready = true
	d.logger.Info("🧠 Detection network initialized: %s", d.modelPath)
	return nil
}

// Ready reports whether the network loaded.
func (d *Detector) Ready() bool {
	return d.ready
}

// Infer runs the network on one frame and returns detections above confidence,
// with boxes in pixel coordinates clamped to the frame.
func (d *Detector) Infer(frame *capture.Frame, confidence float64, targetSize int) ([]models.Detection, error) {
	if !d.ready {
		return nil, ErrNetNotInitialized
	}
	if frame == nil || frame.Mat.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(frame.Mat, 1.0/127.5, image.Pt(targetSize, targetSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows := make([][ssdRowWidth]float32, 0, output.Total()/ssdRowWidth)
	reshaped := output.Reshape(1, output.Total()/ssdRowWidth)
	defer reshaped.Close()
	for i := 0; i < reshaped.Rows(); i++ {
		var row [ssdRowWidth]float32
		for j := range row {
			row[j] = reshaped.GetFloatAt(i, j)
		}
		rows = append(rows, row)
	}

	detections := decodeSSD(rows, frame.Mat.Cols(), frame.Mat.Rows(), confidence)
	for _, det := range detections {
		d.logger.Debug("Detected %s %.2f at %v", det.Label, det.Confidence, det.Box)
	}
	return detections, nil
}

func (d *Detector) Close() error {
	if !d.ready {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = false
	return d.net.Close()
}
