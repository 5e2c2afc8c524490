package ingest

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/onnwee/thunderindex/internal/events"
	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
)

// batchMilestoneInterval controls how often a processed-batch milestone is
// logged, independent of per-batch correlation-ID logging.
const batchMilestoneInterval = 1000

// OffsetCommitter commits the consumed offset for a partition after a batch
// has been fully applied. A no-op implementation is sufficient for a bus
// transport (like the WebSocket stream this consumer reads) that has no
// durable offset concept of its own; a real broker-backed bus supplies one.
type OffsetCommitter interface {
	Commit(partition int) error
}

// NopCommitter never fails; it grounds the default wiring for a transport
// with no durable offsets to commit.
type NopCommitter struct{}

func (NopCommitter) Commit(int) error { return nil }

// Reemitter re-publishes a decoded event on the output bus in the
// structured wire encoding. A nil Reemitter means the pipeline runs in
// serving mode and never re-emits.
type Reemitter interface {
	Emit(e events.Event, hasVideo bool) error
}

// WriterReemitter emits to an io.Writer using the length-prefixed CBOR
// framing; it exists mainly to give tests and local wiring a trivial sink.
type WriterReemitter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterReemitter(w io.Writer) *WriterReemitter { return &WriterReemitter{w: w} }

func (r *WriterReemitter) Emit(e events.Event, hasVideo bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events.EncodeStructured(r.w, e, hasVideo)
}

// Pipeline implements §4.4's per-partition processing step: accumulate a
// buffer of raw payloads until it reaches batchSize, decode and classify
// each, optionally re-emit, apply creates and deletes to the store, then
// commit the partition offset.
type Pipeline struct {
	partition            int
	store                *poststore.Store
	metrics              *metrics.Metrics
	logger               *slog.Logger
	batchSize            int
	postRetentionSeconds int64
	minVideoDurationMS   int64
	nowFn                func() int64
	reemitter            Reemitter
	committer            OffsetCommitter

	mu         sync.Mutex
	buffer     [][]byte
	batchCount atomic.Int64
}

// PipelineConfig bundles the dependencies a Pipeline needs.
type PipelineConfig struct {
	Partition            int
	Store                *poststore.Store
	Metrics              *metrics.Metrics
	Logger               *slog.Logger
	BatchSize            int
	PostRetentionSeconds int64
	MinVideoDurationMS   int64
	NowFn                func() int64
	Reemitter            Reemitter // nil in serving mode
	Committer            OffsetCommitter
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	committer := cfg.Committer
	if committer == nil {
		committer = NopCommitter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		partition:            cfg.Partition,
		store:                cfg.Store,
		metrics:              cfg.Metrics,
		logger:               logger.With("partition", cfg.Partition),
		batchSize:            cfg.BatchSize,
		postRetentionSeconds: cfg.PostRetentionSeconds,
		minVideoDurationMS:   cfg.MinVideoDurationMS,
		nowFn:                cfg.NowFn,
		reemitter:            cfg.Reemitter,
		committer:            committer,
	}
}

// HandleMessage is the BatchHandler the Consumer invokes per raw frame. It
// accumulates payloads and flushes a batch once batchSize is reached.
// It returns the offset-commit error, if any; the Consumer logs a returned
// error and keeps consuming.
func (p *Pipeline) HandleMessage(_ int, payload []byte) error {
	p.mu.Lock()
	p.buffer = append(p.buffer, payload)
	full := len(p.buffer) >= p.batchSize
	var batch [][]byte
	if full {
		batch = p.buffer
		p.buffer = nil
	}
	p.mu.Unlock()

	if !full {
		return nil
	}
	return p.processBatch(batch)
}

// Flush forces processing of whatever is buffered, even if short of
// batchSize. Callers use this on graceful shutdown so no payload is lost.
func (p *Pipeline) Flush() error {
	p.mu.Lock()
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return p.processBatch(batch)
}

func (p *Pipeline) processBatch(batch [][]byte) error {
	now := p.nowFn()
	batchID := uuid.New().String()
	logger := p.logger.With("batch_id", batchID)

	var creates []poststore.Post
	var deletes []poststore.DeleteEvent
	var decoded []events.Event

	for _, payload := range batch {
		ev, err := events.DecodeLegacy(payload)
		if err != nil {
			if p.metrics != nil {
				p.metrics.IncDecodeFailure("legacy")
			}
			logger.Warn("dropping malformed payload", "error", err)
			continue
		}

		switch ev.Kind {
		case events.KindCreate:
			c := ev.Create.Post
			if c.Nullcast {
				// nullcast posts are never indexed.
				continue
			}
			hasVideo := events.DeriveHasVideo(c.Media, p.minVideoDurationMS)
			creates = append(creates, poststore.Post{
				PostID:          c.PostID,
				AuthorID:        c.AuthorID,
				CreatedAt:       c.CreatedAt,
				InReplyToPostID: c.InReplyToPostID,
				InReplyToUserID: c.InReplyToUserID,
				IsRetweet:       c.IsRetweet,
				IsReply:         c.IsReply,
				SourcePostID:    c.SourcePostID,
				SourceUserID:    c.SourceUserID,
				HasVideo:        hasVideo,
				ConversationID:  c.ConversationID,
			})
			decoded = append(decoded, ev)
			if p.metrics != nil {
				p.metrics.IncEventApplied("create")
			}
		case events.KindDelete:
			d := ev.Delete
			if now-d.CreatedAt > p.postRetentionSeconds {
				// too old to affect anything still held by the index.
				continue
			}
			deletes = append(deletes, poststore.DeleteEvent{PostID: d.PostID, DeletedAt: d.DeletedAt})
			decoded = append(decoded, ev)
			if p.metrics != nil {
				p.metrics.IncEventApplied("delete")
			}
		case events.KindQuotedDelete:
			if p.metrics != nil {
				p.metrics.IncEventApplied("quoted_delete")
			}
		default:
			// Other: silently ignored per §4.1.
		}
	}

	if p.reemitter != nil {
		p.reemitBatch(decoded, logger)
	}

	p.store.Insert(creates, now)
	p.store.MarkDeleted(deletes)

	if p.metrics != nil {
		p.metrics.IncBatchProcessed()
	}

	if err := p.committer.Commit(p.partition); err != nil {
		return err
	}

	if n := p.batchCount.Add(1); n%batchMilestoneInterval == 0 {
		logger.Info("batch processing milestone", "batches_processed", n)
	}

	return nil
}

// reemitBatch fires one emit task per decoded event concurrently; the batch
// proceeds only after every task has completed. A failed emit is logged and
// counted but never fails the batch.
func (p *Pipeline) reemitBatch(decoded []events.Event, logger *slog.Logger) {
	var wg sync.WaitGroup
	for _, ev := range decoded {
		ev := ev
		wg.Add(1)
		go func() {
			defer wg.Done()
			hasVideo := false
			if ev.Kind == events.KindCreate {
				hasVideo = events.DeriveHasVideo(ev.Create.Post.Media, p.minVideoDurationMS)
			}
			if err := p.reemitter.Emit(ev, hasVideo); err != nil {
				if p.metrics != nil {
					p.metrics.IncReemitFailure()
				}
				logger.Warn("re-emit failed", "error", err)
			}
		}()
	}
	wg.Wait()
}
