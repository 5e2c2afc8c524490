package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
)

// WorkerPoolConfig configures the ceil-divided partition split across K
// workers, per §4.4.
type WorkerPoolConfig struct {
	BusURL               string
	NumPartitions        int
	NumWorkers           int
	BatchSize            int
	PostRetentionSeconds int64
	MinVideoDurationMS   int64
	LagMonitorInterval   time.Duration
	Store                *poststore.Store
	Metrics              *metrics.Metrics
	Logger               *slog.Logger
	NowFn                func() int64
	Reemitter            Reemitter // nil in serving mode
	Committer            OffsetCommitter

	// DialURL builds the per-partition connection URL. Defaults to
	// appending the partition number as a query parameter.
	DialURL func(busURL string, partition int) string
}

func defaultDialURL(busURL string, partition int) string {
	sep := "?"
	if strings.Contains(busURL, "?") {
		sep = "&"
	}
	return busURL + sep + "partition=" + strconv.Itoa(partition)
}

// partitionRanges ceil-divides NumPartitions partitions across NumWorkers
// workers; a worker that would receive zero partitions (more workers than
// partitions) is skipped entirely.
func partitionRanges(numPartitions, numWorkers int) [][]int {
	if numWorkers <= 0 || numPartitions <= 0 {
		return nil
	}
	perWorker := (numPartitions + numWorkers - 1) / numWorkers

	var ranges [][]int
	for start := 0; start < numPartitions; start += perWorker {
		end := start + perWorker
		if end > numPartitions {
			end = numPartitions
		}
		partitions := make([]int, 0, end-start)
		for p := start; p < end; p++ {
			partitions = append(partitions, p)
		}
		ranges = append(ranges, partitions)
	}
	return ranges
}

// WorkerPool owns one errgroup.Group supervising all partition workers. A
// partition worker whose consumer cannot be constructed returns an error
// that ends the pool: Run returns that error, and the errgroup context
// cancels every other worker. Errors returned by batch processing while
// consuming are logged by the Consumer and do not stop the worker.
type WorkerPool struct {
	cfg WorkerPoolConfig
}

func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.DialURL == nil {
		cfg.DialURL = defaultDialURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WorkerPool{cfg: cfg}
}

// Run starts every worker and blocks until one fails or ctx is cancelled.
func (wp *WorkerPool) Run(ctx context.Context) error {
	ranges := partitionRanges(wp.cfg.NumPartitions, wp.cfg.NumWorkers)
	if len(ranges) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for workerID, partitions := range ranges {
		workerID, partitions := workerID, partitions
		g.Go(func() error {
			return wp.runWorker(gctx, workerID, partitions)
		})
	}
	return g.Wait()
}

func (wp *WorkerPool) runWorker(ctx context.Context, workerID int, partitions []int) error {
	logger := wp.cfg.Logger.With("worker_id", workerID, "partitions", partitions)
	logger.Info("worker starting")

	g, gctx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partition := partition
		g.Go(func() error {
			return wp.runPartition(gctx, partition)
		})
	}
	return g.Wait()
}

func (wp *WorkerPool) runPartition(ctx context.Context, partition int) error {
	pipeline := NewPipeline(PipelineConfig{
		Partition:            partition,
		Store:                wp.cfg.Store,
		Metrics:              wp.cfg.Metrics,
		Logger:               wp.cfg.Logger,
		BatchSize:            wp.cfg.BatchSize,
		PostRetentionSeconds: wp.cfg.PostRetentionSeconds,
		MinVideoDurationMS:   wp.cfg.MinVideoDurationMS,
		NowFn:                wp.cfg.NowFn,
		Reemitter:            wp.cfg.Reemitter,
		Committer:            wp.cfg.Committer,
	})

	consumer, err := NewConsumer(ConsumerConfig{
		URL:              wp.cfg.DialURL(wp.cfg.BusURL, partition),
		Partition:        partition,
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		JitterFactor:     DefaultJitterFactor,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
	}, pipeline.HandleMessage, wp.cfg.Logger, wp.cfg.Metrics)
	if err != nil {
		return err
	}

	stopLagMonitor := wp.startLagMonitor(ctx, partition)
	defer stopLagMonitor()

	err = consumer.Run(ctx)
	if flushErr := pipeline.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err == context.Canceled {
		return nil
	}
	return err
}

// startLagMonitor publishes a zero-valued lag gauge on a fixed cadence,
// mirroring §4.4 step 2's lag monitor coroutine. The actual lag computation
// depends on the bus transport's own notion of offset, which the WebSocket
// transport this consumer is built on does not expose; this keeps the
// metric alive with a neutral value rather than leaving it stale.
func (wp *WorkerPool) startLagMonitor(ctx context.Context, partition int) func() {
	if wp.cfg.Metrics == nil || wp.cfg.LagMonitorInterval <= 0 {
		return func() {}
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(wp.cfg.LagMonitorInterval)
		defer ticker.Stop()
		label := strconv.Itoa(partition)
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				wp.cfg.Metrics.SetPartitionLag(label, 0)
			}
		}
	}()
	return cancel
}
