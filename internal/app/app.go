package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"catwatch/internal/config"
	"catwatch/internal/logger"
	"catwatch/internal/models"
	"catwatch/internal/repository/sqlite"
	"catwatch/internal/routes"
	"catwatch/internal/services/ai"
	"catwatch/internal/services/capture"
	"catwatch/internal/services/framebuffer"
	"catwatch/internal/services/notify"
	"catwatch/internal/services/overlay"
	"catwatch/internal/services/pipeline"
	"catwatch/internal/services/storage"
	"catwatch/internal/services/stream"
	"catwatch/internal/services/tracker"
	"catwatch/internal/services/websocket"
)

const shutdownTimeout = 5 * time.Second

// Stats is the /api/stats payload.
type Stats struct {
	Buffer   framebuffer.Stats `json:"buffer"`
	Pipeline pipeline.Stats    `json:"pipeline"`
	Storage  storage.Stats     `json:"storage"`
	Detector bool              `json:"detector_ready"`
	MQTT     *notify.MQTTStats `json:"mqtt,omitempty"`
	Viewers  int               `json:"viewers"`
	Streamed uint64            `json:"streamed_frames"`
}

// App owns every long-lived service and the capture pipeline around them.
type App struct {
	config *config.Config
	logger *logger.Logger

	db       *sqlite.DB
	events   *sqlite.EventRepository
	detector *ai.Detector
	renderer *overlay.Renderer
	stream   *stream.Stream
	hub      *websocket.HubService
	recorder *storage.BufferService
	mqtt     *notify.MQTTPublisher

	buffer    *framebuffer.Buffer[*capture.Frame]
	processor *pipeline.Processor[*capture.Frame]
}

// Options adjust a run beyond the configuration file.
type Options struct {
	DisableMQTT bool
	Sinks       []pipeline.Sink
}

// New opens the event store and loads the detection model.
func New(cfg *config.Config, logger *logger.Logger) (*App, error) {
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	events := sqlite.NewEventRepository(db)
	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		events:   events,
		detector: ai.NewDetector(cfg.Detector, logger),
		renderer: overlay.NewRenderer(nil),
		stream:   stream.New(),
		hub:      websocket.NewHubService(logger),
		recorder: storage.NewBufferService(cfg.Snapshots, events, logger),
	}, nil
}

// OpenCamera opens the configured device, or the first discovered one.
func (a *App) OpenCamera() (*capture.Source, error) {
	cam := a.config.Camera
	if cam.Device != "" {
		return capture.OpenDevice(cam.Device, cam.Width, cam.Height, a.logger)
	}
	devices := capture.Discover(capture.DefaultDeviceDir)
	a.logger.Info("Discovered camera devices: %v", devices)
	return capture.OpenFirst(devices, cam.Width, cam.Height, a.logger)
}

// Run serves HTTP and processes frames from src until ctx is cancelled or the
// source is exhausted. The source is closed on return.
func (a *App) Run(ctx context.Context, src pipeline.Source[*capture.Frame], opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	background(func() { a.hub.Run(ctx) })
	background(func() { a.recorder.Run(ctx, a.config.Snapshots.FlushInterval) })

	notifiers := notify.Fanout{a.recorder, a.hub}
	if a.config.MQTT.Enabled && !opts.DisableMQTT {
		a.mqtt = notify.NewMQTTPublisher(a.config.MQTT, a.logger)
		if err := a.mqtt.Connect(ctx); err != nil {
			a.logger.Warning("MQTT unavailable, retrying in background: %v", err)
		}
		defer a.mqtt.Disconnect()
		notifiers = append(notifiers, a.mqtt)
	}
	producer := a.build(src, notifiers, opts.Sinks)

	server := &http.Server{
		Addr:              a.config.ServerAddress(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	background(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancel()
		}
	})
	a.logger.Info("🚀 catwatch listening on http://localhost%s", server.Addr)

	err := a.runPipeline(ctx, producer)

	a.shutdown(server, shutdownTimeout)
	cancel()
	wg.Wait()

	select {
	case e := <-serverErr:
		return fmt.Errorf("http server: %w", e)
	default:
	}
	return err
}

// shutdown drains the HTTP server, then force-closes what is left. MJPEG
// viewers never return on their own once frames stop.
func (a *App) shutdown(server *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Info("HTTP shutdown: %v, closing remaining connections", err)
		if err := server.Close(); err != nil {
			a.logger.Warning("HTTP close: %v", err)
		}
	}
}

// Replay runs the pipeline over src without the HTTP surface. Events are
// recorded; MQTT is only used when not disabled in opts.
func (a *App) Replay(ctx context.Context, src pipeline.Source[*capture.Frame], opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.recorder.Run(ctx, a.config.Snapshots.FlushInterval)
	}()

	notifiers := notify.Fanout{a.recorder}
	if a.config.MQTT.Enabled && !opts.DisableMQTT {
		a.mqtt = notify.NewMQTTPublisher(a.config.MQTT, a.logger)
		if err := a.mqtt.Connect(ctx); err != nil {
			a.logger.Warning("MQTT unavailable: %v", err)
		}
		defer a.mqtt.Disconnect()
		notifiers = append(notifiers, a.mqtt)
	}

	err := a.runPipeline(ctx, a.build(src, notifiers, opts.Sinks))
	cancel()
	<-done
	return err
}

// build wires a fresh buffer, tracker and processor around src.
// Tracker state never outlives a run.
func (a *App) build(src pipeline.Source[*capture.Frame], notifier pipeline.Notifier, sinks []pipeline.Sink) *pipeline.Producer[*capture.Frame] {
	a.buffer = framebuffer.New[*capture.Frame](a.config.Camera.BufferCapacity, framebuffer.WithEvict[*capture.Frame](func(f *capture.Frame) {
		f.Close()
	}))

	tr := tracker.New(tracker.Config{
		Labels:       a.config.Tracking.Labels,
		IoUThreshold: a.config.Tracking.IoUThreshold,
		Timeout:      a.config.Tracking.TrackTimeout,
		Cooldown:     a.config.Tracking.Cooldown,
	})

	a.processor = pipeline.NewProcessor[*capture.Frame](a.buffer, a.detector, tr, a.logger, pipeline.Settings{
		Interval:     a.config.Tracking.ProcessingInterval,
		Confidence:   a.config.Detector.Confidence,
		TargetSize:   a.config.Detector.TargetSize,
		IdleTimeout:  a.config.Tracking.IdleTimeout,
		PollInterval: a.config.Tracking.PollInterval,
	},
		pipeline.WithRenderer[*capture.Frame](a.renderer),
		pipeline.WithSinks[*capture.Frame](append([]pipeline.Sink{a.stream}, sinks...)...),
		pipeline.WithNotifier[*capture.Frame](notifier),
	)
	return pipeline.NewProducer[*capture.Frame](src, a.buffer, a.logger, a.config.Tracking.PollInterval)
}

func (a *App) runPipeline(ctx context.Context, producer *pipeline.Producer[*capture.Frame]) error {
	a.logger.Info("🎬 Pipeline started: labels=%v interval=%d cooldown=%s",
		a.config.Tracking.Labels, a.config.Tracking.ProcessingInterval, a.config.Tracking.Cooldown)

	err := pipeline.Run(ctx, producer, a.processor)
	stats := a.processor.Stats()
	a.logger.Info("Pipeline stopped: %d frames, %d cycles, %d events, %d inference failures",
		stats.Frames, stats.Cycles, stats.Events, stats.InferenceFailures)
	return err
}

func (a *App) routes() http.Handler {
	return routes.SetupRoutes(routes.Deps{
		Events: a.events,
		Stream: a.stream,
		Hub:    a.hub,
		Tracks: trackLister{a},
		Stats:  func() interface{} { return a.Stats() },
	}, a.config, a.logger)
}

// Stats collects the counters of every service.
func (a *App) Stats() Stats {
	s := Stats{
		Storage:  a.recorder.Stats(),
		Detector: a.detector.Ready(),
		Viewers:  a.hub.GetClientCount(),
		Streamed: a.stream.Frames(),
	}
	if a.buffer != nil {
		s.Buffer = a.buffer.Stats()
	}
	if a.processor != nil {
		s.Pipeline = a.processor.Stats()
	}
	if a.mqtt != nil {
		m := a.mqtt.Stats()
		s.MQTT = &m
	}
	return s
}

func (a *App) Close() error {
	var errs []error
	if err := a.detector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type trackLister struct{ a *App }

func (t trackLister) Tracks() []models.Track {
	if t.a.processor == nil {
		return nil
	}
	return t.a.processor.Tracks()
}
