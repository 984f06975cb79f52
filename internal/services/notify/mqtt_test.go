package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"catwatch/internal/config"
	"catwatch/internal/logger"
	"catwatch/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type message struct {
	topic   string
	payload string
}

type fakeClient struct {
	opts       *mqtt.ClientOptions
	connectErr error
	publishErr error

	mu            sync.Mutex
	connected     bool
	messages      []message
	subscriptions []string
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr != nil {
		return doneToken(c.connectErr)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return doneToken(c.publishErr)
	}
	c.messages = append(c.messages, message{topic: topic, payload: payload.(string)})
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, topic)
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token { return doneToken(nil) }

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		ClientID:    "catwatch_test",
		FeedTopic:   "cat/feeding",
		StatusTopic: "cat/status",
	}
}

func newTestPublisher(fake *fakeClient) *MQTTPublisher {
	p := NewMQTTPublisher(testMQTTConfig(), logger.Discard())
	p.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		fake.opts = opts
		return fake
	}
	return p
}

func catEvent() models.Event {
	return models.NewEvent(models.Track{ID: 0, Label: "cat", Confidence: 0.9}, time.Now())
}

func TestMQTTPublisher_ConnectAnnouncesOnline(t *testing.T) {
	fake := &fakeClient{}
	p := newTestPublisher(fake)

	require.NoError(t, p.Connect(context.Background()))
	p.Disconnect()

	assert.Equal(t, []string{"cat/status"}, fake.subscriptions)
	assert.Equal(t, []message{{topic: "cat/status", payload: "CATWATCH_TEST ONLINE"}}, fake.sent())
	assert.Equal(t, uint64(1), p.Stats().Published["cat/status"])
}

func TestMQTTPublisher_PublishSendsFeedAndStatus(t *testing.T) {
	fake := &fakeClient{}
	p := newTestPublisher(fake)
	require.NoError(t, p.Connect(context.Background()))

	p.Publish(catEvent())
	p.Disconnect()

	assert.Contains(t, fake.sent(), message{topic: "cat/feeding", payload: "CAT"})
	assert.Contains(t, fake.sent(), message{topic: "cat/status", payload: "CAT DETECTED BY CAMERA"})

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Published["cat/feeding"])
	assert.Equal(t, uint64(2), stats.Published["cat/status"])
	assert.Zero(t, stats.Errors)
	assert.False(t, stats.Connected)
}

func TestMQTTPublisher_DropsWhileDisconnected(t *testing.T) {
	fake := &fakeClient{}
	p := newTestPublisher(fake)

	p.Publish(catEvent())

	assert.Empty(t, fake.sent())
	assert.Equal(t, uint64(1), p.Stats().Errors)
}

func TestMQTTPublisher_PublishErrorIsCounted(t *testing.T) {
	fake := &fakeClient{}
	p := newTestPublisher(fake)
	require.NoError(t, p.Connect(context.Background()))
	require.Eventually(t, func() bool { return p.Stats().Published["cat/status"] == 1 },
		time.Second, 5*time.Millisecond, "ONLINE announcement delivered")
	fake.mu.Lock()
	fake.publishErr = errors.New("broker refused")
	fake.mu.Unlock()

	p.Publish(catEvent())
	p.Disconnect()

	assert.Equal(t, uint64(2), p.Stats().Errors)
}

func TestMQTTPublisher_ConnectFailure(t *testing.T) {
	fake := &fakeClient{connectErr: errors.New("no route to host")}
	p := newTestPublisher(fake)

	err := p.Connect(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route to host")
	assert.False(t, p.Stats().Connected)
}

// stalledClient holds every Publish until release is closed, like a broker
// connection whose writes have stopped draining.
type stalledClient struct {
	*fakeClient
	release chan struct{}
}

func (c *stalledClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	<-c.release
	return c.fakeClient.Publish(topic, qos, retained, payload)
}

func TestMQTTPublisher_PublishDoesNotBlockOnStalledBroker(t *testing.T) {
	stalled := &stalledClient{fakeClient: &fakeClient{}, release: make(chan struct{})}
	p := NewMQTTPublisher(testMQTTConfig(), logger.Discard())
	p.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		stalled.opts = opts
		return stalled
	}
	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, publishTimeout, stalled.opts.WriteTimeout)

	start := time.Now()
	for i := 0; i < 20; i++ {
		p.Publish(catEvent())
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond, "Publish waited on the broker")
	assert.GreaterOrEqual(t, p.Stats().Errors, uint64(40-queueSize), "overflow is dropped")

	close(stalled.release)
	p.Disconnect()

	sent := stalled.sent()
	assert.NotEmpty(t, sent)
	assert.LessOrEqual(t, len(sent), queueSize+1)
}

type countingNotifier struct{ events []models.Event }

func (c *countingNotifier) Publish(e models.Event) { c.events = append(c.events, e) }

func TestFanout(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{}
	f := Fanout{a, nil, b}

	ev := catEvent()
	f.Publish(ev)

	assert.Equal(t, []models.Event{ev}, a.events)
	assert.Equal(t, []models.Event{ev}, b.events)
}
