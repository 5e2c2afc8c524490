// Package ingest implements C4: a pool of workers, each owning a subset of
// input partitions, that poll a partition, decode its batch, apply it to
// the post index, and commit the offset. The per-partition transport is a
// resilient WebSocket client with backpressure handling and exponential
// backoff reconnect, generalized from this codebase's Jetstream consumer.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/thunderindex/internal/metrics"
)

// Backpressure thresholds, unchanged from the pattern this consumer
// generalizes: pause consumption once the local queue backs up, resume once
// it has drained, and give up on a connection that can't drain at all.
const (
	BackpressurePauseThreshold  = 1000
	BackpressureResumeThreshold = 100
	MaxPauseDuration            = 30 * time.Second
	QueueBufferSize             = 2000
)

// Default reconnect backoff parameters, applied by the worker pool when
// constructing each partition's Consumer.
const (
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultMaxDelay         = 30 * time.Second
	DefaultJitterFactor     = 0.5
	DefaultMaxRetryAttempts = 5
)

// ConsumerConfig configures a single partition's WebSocket connection.
type ConsumerConfig struct {
	URL              string
	Partition        int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	JitterFactor     float64
	MaxRetryAttempts int64
}

func (c ConsumerConfig) validate() error {
	if c.URL == "" {
		return errors.New("ingest: consumer URL cannot be empty")
	}
	if c.BaseDelay <= 0 {
		return errors.New("ingest: base delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("ingest: max delay must be >= base delay")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return errors.New("ingest: jitter factor must be between 0 and 1")
	}
	return nil
}

// BatchHandler processes one raw websocket frame for a partition. A returned
// error is logged; the consumer keeps its connection and goes on with the
// next message.
type BatchHandler func(messageType int, payload []byte) error

type queuedMessage struct {
	messageType int
	payload     []byte
}

// Consumer is a resilient per-partition WebSocket client.
type Consumer struct {
	cfg     ConsumerConfig
	handler BatchHandler
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu               sync.Mutex
	rng              *rand.Rand
	conn             *websocket.Conn
	isConnected      bool
	isPaused         bool
	pauseStart       time.Time
	pauseInitialized bool

	messageQueue   chan queuedMessage
	reconnectCount int64
}

// NewConsumer creates a Consumer for one partition. metrics may be nil in tests.
func NewConsumer(cfg ConsumerConfig, handler BatchHandler, logger *slog.Logger, m *metrics.Metrics) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:          cfg,
		handler:      handler,
		logger:       logger.With("partition", cfg.Partition),
		metrics:      m,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.Partition))),
		messageQueue: make(chan queuedMessage, QueueBufferSize),
	}, nil
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff and jitter on every connection failure.
func (c *Consumer) Run(ctx context.Context) error {
	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	processorDone := make(chan struct{})
	go func() {
		c.processMessages(processorCtx)
		close(processorDone)
	}()

	for {
		select {
		case <-ctx.Done():
			c.close()
			<-processorDone
			return ctx.Err()
		default:
		}

		if err := c.connect(ctx); err != nil {
			attempt := atomic.LoadInt64(&c.reconnectCount) + 1
			if c.metrics != nil {
				c.metrics.IncPollError()
			}
			c.logger.Warn("partition connection failed", "error", err, "attempt", attempt)

			delay := c.computeBackoff()
			atomic.AddInt64(&c.reconnectCount, 1)
			c.logger.Info("scheduling reconnect", "delay", delay)

			select {
			case <-ctx.Done():
				<-processorDone
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&c.reconnectCount, 0)
		c.readLoop(ctx)
	}
}

func (c *Consumer) connect(ctx context.Context) error {
	c.logger.Info("connecting to partition stream", "url", c.cfg.URL)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("connected to partition stream")
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		queueLen := len(c.messageQueue)

		c.mu.Lock()
		if !c.isPaused && queueLen > BackpressurePauseThreshold {
			c.isPaused = true
			c.pauseStart = time.Now()
			c.pauseInitialized = true
			c.logger.Warn("backpressure: pausing consumption", "pending", queueLen)
		}
		if c.isPaused && queueLen < BackpressureResumeThreshold {
			var pauseDuration time.Duration
			if c.pauseInitialized {
				pauseDuration = time.Since(c.pauseStart)
			}
			c.isPaused = false
			c.pauseInitialized = false
			c.logger.Info("backpressure: resuming consumption", "pause_duration", pauseDuration)
		}
		if c.isPaused && c.pauseInitialized && time.Since(c.pauseStart) > MaxPauseDuration {
			c.logger.Warn("backpressure: exceeded max pause duration", "pending", queueLen)
			c.pauseStart = time.Now()
		}
		isPaused := c.isPaused
		c.mu.Unlock()

		if isPaused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("partition connection closed", "error", err)
			c.close()
			return
		}

		payloadCopy := make([]byte, len(payload))
		copy(payloadCopy, payload)
		msg := queuedMessage{messageType: messageType, payload: payloadCopy}
		select {
		case c.messageQueue <- msg:
		case <-time.After(5 * time.Second):
			c.logger.Error("backpressure: failed to queue message after timeout, closing connection", "pending", len(c.messageQueue))
			c.close()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
	c.isPaused = false
	c.pauseInitialized = false
	c.pauseStart = time.Time{}
}

func (c *Consumer) processMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.drainQueue()
			return
		case msg := <-c.messageQueue:
			if c.handler != nil {
				if err := c.handler(msg.messageType, msg.payload); err != nil {
					c.logger.Error("batch handler error", "error", err)
				}
			}
		}
	}
}

func (c *Consumer) drainQueue() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-c.messageQueue:
			if c.handler != nil {
				if err := c.handler(msg.messageType, msg.payload); err != nil {
					c.logger.Error("batch handler error during drain", "error", err)
				}
			}
		case <-timeout:
			if remaining := len(c.messageQueue); remaining > 0 {
				c.logger.Warn("queue drain timeout, messages remaining", "remaining", remaining)
			}
			return
		default:
			return
		}
	}
}

func (c *Consumer) computeBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	reconnectCount := atomic.LoadInt64(&c.reconnectCount)
	shift := uint(reconnectCount)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.cfg.BaseDelay) * float64(uint64(1)<<shift)
	if backoff > float64(c.cfg.MaxDelay) {
		backoff = float64(c.cfg.MaxDelay)
	}
	if c.cfg.JitterFactor > 0 {
		jitter := (c.rng.Float64() - 0.5) * c.cfg.JitterFactor
		backoff = backoff * (1 + jitter)
	}
	return time.Duration(backoff)
}

// IsConnected reports whether the partition connection is currently live.
func (c *Consumer) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
