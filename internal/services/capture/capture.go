// Package capture reads frames from a V4L2 camera or a video file with gocv.
package capture

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/services/pipeline"

	"gocv.io/x/gocv"
)

// Frame is one captured image. The Mat is owned by whoever holds the frame.
type Frame struct {
	Mat        gocv.Mat
	Seq        uint64
	CapturedAt time.Time
}

func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Source wraps a gocv.VideoCapture and implements pipeline.Source[*Frame].
type Source struct {
	name    string
	file    bool
	capture *gocv.VideoCapture
	seq     uint64
	logger  *logger.Logger

	// pace is the frame interval when replaying a file in real time.
	pace    time.Duration
	started time.Time

	closeOnce sync.Once
}

// OpenDevice opens a camera by path ("/dev/video0") or index ("0").
// The driver-side queue is shrunk to one frame so reads return the newest image.
func OpenDevice(device string, width, height int, logger *logger.Logger) (*Source, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %s: device not opened", device)
	}

	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	logger.Info("📷 Camera opened: %s", device)
	return &Source{name: device, capture: vc, logger: logger}, nil
}

// OpenFile opens a video file. End of file is reported as ErrSourceExhausted.
// With realtime set, Read releases frames at the file's native frame rate,
// so the pipeline sees the same cadence a live camera would produce.
func OpenFile(path string, realtime bool, logger *logger.Logger) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: file not opened", path)
	}

	src := &Source{name: path, file: true, capture: vc, logger: logger}
	if fps := vc.Get(gocv.VideoCaptureFPS); realtime && fps > 0 {
		src.pace = time.Duration(float64(time.Second) / fps)
	}
	logger.Info("🎞️ Video opened: %s (%d frames)", path, src.FrameCount())
	return src, nil
}

// OpenFirst tries each device in order and returns the first that opens.
func OpenFirst(devices []string, width, height int, logger *logger.Logger) (*Source, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no camera devices found: %w", pipeline.ErrSourceExhausted)
	}
	var lastErr error
	for _, device := range devices {
		src, err := OpenDevice(device, width, height, logger)
		if err == nil {
			return src, nil
		}
		logger.Warning("Camera %s unavailable: %v", device, err)
		lastErr = err
	}
	return nil, fmt.Errorf("no camera could be opened: %w", lastErr)
}

// Read grabs the next frame. A transient miss returns ok == false with no error.
func (s *Source) Read() (*Frame, bool, error) {
	if !s.capture.IsOpened() {
		return nil, false, fmt.Errorf("%s closed: %w", s.name, pipeline.ErrSourceExhausted)
	}

	s.wait()

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if s.file {
			return nil, false, fmt.Errorf("%s: end of file: %w", s.name, pipeline.ErrSourceExhausted)
		}
		if s.gone() {
			return nil, false, fmt.Errorf("%s disappeared: %w", s.name, pipeline.ErrSourceExhausted)
		}
		return nil, false, nil
	}

	s.seq++
	return &Frame{Mat: mat, Seq: s.seq, CapturedAt: time.Now()}, true, nil
}

// wait holds back file frames until their presentation time.
func (s *Source) wait() {
	if s.pace <= 0 {
		return
	}
	if s.started.IsZero() {
		s.started = time.Now()
		return
	}
	if d := time.Until(s.started.Add(time.Duration(s.seq) * s.pace)); d > 0 {
		time.Sleep(d)
	}
}

// gone reports whether a device node has been unplugged.
func (s *Source) gone() bool {
	if !strings.HasPrefix(s.name, "/dev/") {
		return false
	}
	_, err := os.Stat(s.name)
	return os.IsNotExist(err)
}

// FrameCount is the number of frames in a video file, or 0 for cameras.
func (s *Source) FrameCount() int {
	if !s.file {
		return 0
	}
	return int(s.capture.Get(gocv.VideoCaptureFrameCount))
}

func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.capture.Close()
		s.logger.Info("Capture released: %s", s.name)
	})
	return err
}
