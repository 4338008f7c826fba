// Package mqttsink forwards published scans to an MQTT broker.
package mqttsink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/monitoring"
)

var logf = monitoring.Tagged("MQTT")

const (
	// DefaultTopic is used when Options.Topic is empty.
	DefaultTopic = "scanlog/scans"
	// DefaultBuffer is the number of payloads a Sink holds while the
	// broker is slow.
	DefaultBuffer = 64
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Options configures Dial.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Timeout  time.Duration
	// Buffer bounds the payloads waiting for the broker.
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.ClientID == "" {
		o.ClientID = "scanlog"
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.Broker != "" && !strings.Contains(o.Broker, "://") {
		o.Broker = "tcp://" + o.Broker
	}
	return o
}

// clientPublisher adapts a paho client to Publisher.
type clientPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

func (p *clientPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Dial connects to the broker and returns a Sink publishing on opts.Topic.
// The returned function closes the sink and disconnects.
func Dial(ctx context.Context, opts Options) (*Sink, func(), error) {
	opts = opts.withDefaults()
	if opts.Broker == "" {
		return nil, nil, errors.New("mqtt broker not set")
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		logf("connected to %s as %s", opts.Broker, opts.ClientID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logf("connection to %s lost: %v", opts.Broker, err)
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}

	pub := &clientPublisher{client: client, qos: opts.QoS, timeout: opts.Timeout}
	sink := newSink(pub, opts.Topic, opts.Buffer)
	return sink, func() {
		sink.Close()
		client.Disconnect(250)
	}, nil
}

// Sink is a hub subscriber that publishes every scan as JSON. Handle only
// encodes and enqueues; a single goroutine talks to the broker, so a slow
// or unreachable broker never stalls the caller. Scans arriving while the
// buffer is full are dropped and counted.
type Sink struct {
	pub   Publisher
	topic string

	mu     sync.RWMutex
	closed bool
	out    chan outgoing
	done   chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

type outgoing struct {
	seq     int
	payload []byte
}

// New returns a Sink writing to topic through pub with DefaultBuffer
// pending payloads.
func New(pub Publisher, topic string) *Sink {
	return newSink(pub, topic, DefaultBuffer)
}

func newSink(pub Publisher, topic string, buffer int) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Sink{
		pub:   pub,
		topic: topic,
		out:   make(chan outgoing, buffer),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sink) loop() {
	defer close(s.done)
	giveUp := false
	for o := range s.out {
		if giveUp {
			s.dropped.Add(1)
			continue
		}
		if err := s.pub.Publish(s.topic, o.payload); err != nil {
			s.failed.Add(1)
			logf("publish scan %d to %s: %v", o.seq, s.topic, err)
			// once closing, one failure abandons the rest of the queue
			s.mu.RLock()
			giveUp = s.closed
			s.mu.RUnlock()
			continue
		}
		s.published.Add(1)
	}
}

// Topic returns the destination topic.
func (s *Sink) Topic() string { return s.topic }

// Handle queues m for publishing. It never waits on the broker.
func (s *Sink) Handle(m lms.ScanMessage) {
	payload, err := sonic.Marshal(m)
	if err != nil {
		s.failed.Add(1)
		logf("encode scan %d: %v", m.Seq, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.out <- outgoing{seq: m.Seq, payload: payload}:
	default:
		// log the first drop and every hundredth after it
		if n := s.dropped.Add(1); n%100 == 1 {
			logf("buffer full, dropped scan %d (%d dropped so far)", m.Seq, n)
		}
	}
}

// Close stops accepting scans and waits until the queued ones have been
// handed to the publisher. After the first failure during close the rest
// of the queue is dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	<-s.done
	published, failed, dropped := s.Counts()
	logf("sink closed: %d published, %d failed, %d dropped", published, failed, dropped)
}

// Counts returns the number of successful, failed and dropped publishes.
func (s *Sink) Counts() (published, failed, dropped uint64) {
	return s.published.Load(), s.failed.Load(), s.dropped.Load()
}
