package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/models"
	"catwatch/internal/services/framebuffer"
	"catwatch/internal/services/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	seq      int
	released *atomic.Int64
}

func (f *fakeFrame) Close() error {
	f.released.Add(1)
	return nil
}

type sliceSource struct {
	frames []*fakeFrame
	next   int
	misses int // reads that yield no frame before each real frame
	miss   int
	closed atomic.Bool
}

func (s *sliceSource) Read() (*fakeFrame, bool, error) {
	if s.next >= len(s.frames) {
		return nil, false, ErrSourceExhausted
	}
	if s.miss < s.misses {
		s.miss++
		return nil, false, nil
	}
	s.miss = 0
	f := s.frames[s.next]
	s.next++
	return f, true, nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedDetector returns detections keyed by frame sequence number.
type scriptedDetector struct {
	mu     sync.Mutex
	script map[int][]models.Detection
	fail   map[int]bool
	calls  []int
}

func (d *scriptedDetector) Infer(frame *fakeFrame, confidence float64, targetSize int) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, frame.seq)
	if d.fail[frame.seq] {
		return nil, errors.New("model crashed")
	}
	return d.script[frame.seq], nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(frame *fakeFrame, tracks []models.Track) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg-%d-%d", frame.seq, len(tracks))), nil
}

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSink) UpdateJPEG(jpeg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, jpeg)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Publish(event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func makeFrames(n int, released *atomic.Int64) []*fakeFrame {
	frames := make([]*fakeFrame, n)
	for i := range frames {
		frames[i] = &fakeFrame{seq: i + 1, released: released}
	}
	return frames
}

func newTracker() *tracker.Tracker {
	return tracker.New(tracker.Config{
		Labels:       []string{"cat", "person"},
		IoUThreshold: 0.3,
		Timeout:      15,
		Cooldown:     10 * time.Second,
	})
}

func cat(x1, y1, x2, y2 int) models.Detection {
	return models.Detection{Label: "cat", Confidence: 0.9, Box: models.NewBox(x1, y1, x2, y2)}
}

// filledBuffer returns a closed buffer holding frames in order.
func filledBuffer(frames []*fakeFrame) *framebuffer.Buffer[*fakeFrame] {
	buf := framebuffer.New[*fakeFrame](len(frames), framebuffer.WithEvict(func(f *fakeFrame) { f.Close() }))
	for _, f := range frames {
		buf.Push(f)
	}
	buf.Close()
	return buf
}

func TestProcessor_SamplingCadence(t *testing.T) {
	var released atomic.Int64
	frames := makeFrames(7, &released)
	det := &scriptedDetector{}

	p := NewProcessor[*fakeFrame](filledBuffer(frames), det, newTracker(), logger.Discard(), Settings{Interval: 3})
	err := p.Run(context.Background())

	require.ErrorIs(t, err, ErrSourceExhausted)
	assert.Equal(t, []int{1, 4, 7}, det.calls)
	assert.Equal(t, int64(7), released.Load(), "every frame is released exactly once")

	s := p.Stats()
	assert.Equal(t, uint64(7), s.Frames)
	assert.Equal(t, uint64(3), s.Cycles)
}

func TestProcessor_AgingOnlyOnSamplingCycles(t *testing.T) {
	var released atomic.Int64
	det := &scriptedDetector{script: map[int][]models.Detection{1: {cat(10, 10, 50, 50)}}}
	sink := &recordingSink{}

	p := NewProcessor[*fakeFrame](filledBuffer(makeFrames(3, &released)), det, newTracker(), logger.Discard(),
		Settings{Interval: 2},
		WithRenderer[*fakeFrame](fakeRenderer{}),
		WithSinks[*fakeFrame](sink),
	)
	require.ErrorIs(t, p.Run(context.Background()), ErrSourceExhausted)

	// frame 2 is skipped and reuses the track set, frame 3 ages it once
	require.Len(t, sink.frames, 3)
	assert.Equal(t, "jpeg-2-1", string(sink.frames[1]))
	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, tracks[0].Age)
}

func TestProcessor_InferenceFailureKeepsTracks(t *testing.T) {
	var released atomic.Int64
	det := &scriptedDetector{
		script: map[int][]models.Detection{1: {cat(10, 10, 50, 50)}},
		fail:   map[int]bool{2: true, 3: true},
	}

	p := NewProcessor[*fakeFrame](filledBuffer(makeFrames(3, &released)), det, newTracker(), logger.Discard(), Settings{Interval: 1})
	require.ErrorIs(t, p.Run(context.Background()), ErrSourceExhausted)

	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 0, tracks[0].Age, "failed cycles must not age tracks")
	assert.Equal(t, uint64(2), p.Stats().InferenceFailures)
	assert.Equal(t, int64(3), released.Load())
}

func TestProcessor_PublishesOneEventWithImage(t *testing.T) {
	var released atomic.Int64
	det := &scriptedDetector{script: map[int][]models.Detection{
		1: {cat(10, 10, 50, 50)},
		2: {cat(12, 11, 52, 49)},
		3: {cat(14, 12, 54, 50)},
	}}
	notifier := &recordingNotifier{}

	p := NewProcessor[*fakeFrame](filledBuffer(makeFrames(3, &released)), det, newTracker(), logger.Discard(),
		Settings{Interval: 1},
		WithRenderer[*fakeFrame](fakeRenderer{}),
		WithNotifier[*fakeFrame](notifier),
	)
	require.ErrorIs(t, p.Run(context.Background()), ErrSourceExhausted)

	require.Len(t, notifier.events, 1)
	ev := notifier.events[0]
	assert.Equal(t, "CAT", ev.Payload())
	assert.Equal(t, "jpeg-1-1", string(ev.Image))
	assert.Equal(t, uint64(1), p.Stats().Events)
}

func TestProcessor_StarvedBufferTerminates(t *testing.T) {
	buf := framebuffer.New[*fakeFrame](2)
	p := NewProcessor[*fakeFrame](buf, &scriptedDetector{}, newTracker(), logger.Discard(),
		Settings{Interval: 1, IdleTimeout: 20 * time.Millisecond, PollInterval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBufferStarved)
	case <-time.After(2 * time.Second):
		t.Fatal("processor kept spinning on an empty buffer")
	}
}

func TestProcessor_CancelStopsCleanly(t *testing.T) {
	buf := framebuffer.New[*fakeFrame](2)
	p := NewProcessor[*fakeFrame](buf, &scriptedDetector{}, newTracker(), logger.Discard(),
		Settings{Interval: 1, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor ignored cancellation")
	}
}

func TestProducer_RetriesMissesAndStopsOnExhaustion(t *testing.T) {
	var released atomic.Int64
	src := &sliceSource{frames: makeFrames(3, &released), misses: 2}
	buf := framebuffer.New[*fakeFrame](5)

	err := NewProducer[*fakeFrame](src, buf, logger.Discard(), time.Millisecond).Run(context.Background())

	require.ErrorIs(t, err, ErrSourceExhausted)
	assert.True(t, src.closed.Load(), "capture resource must be released")
	assert.True(t, buf.Closed())
	assert.Equal(t, 3, buf.Len())
}

func TestRun_SourceExhaustionEndsBothLoops(t *testing.T) {
	var released atomic.Int64
	frames := makeFrames(20, &released)
	src := &sliceSource{frames: frames}
	buf := framebuffer.New[*fakeFrame](2, framebuffer.WithEvict(func(f *fakeFrame) { f.Close() }))
	det := &scriptedDetector{}

	producer := NewProducer[*fakeFrame](src, buf, logger.Discard(), time.Millisecond)
	processor := NewProcessor[*fakeFrame](buf, det, newTracker(), logger.Discard(),
		Settings{Interval: 1, PollInterval: time.Millisecond, IdleTimeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- Run[*fakeFrame](context.Background(), producer, processor) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSourceExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not terminate")
	}

	assert.True(t, src.closed.Load())
	assert.Equal(t, int64(len(frames)), released.Load(), "processed, dropped and drained frames are all released")
	assert.Equal(t, 0, buf.Len())
}
