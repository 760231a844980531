// Package telemetry publishes request metrics to AWS CloudWatch.
//
// The collector buffers data points in memory and flushes them in
// batches, so the HTTP request path never blocks on a CloudWatch call.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	metricRequestCount   = "RequestCount"
	metricRequestLatency = "RequestLatency"

	dimMethod   = "Method"
	dimEndpoint = "Endpoint"
	dimStatus   = "Status"

	// CloudWatch caps PutMetricData at 1000 datums per call; we stay
	// well under it so a single flush fits in one request.
	flushBatchSize = 500

	defaultFlushInterval = 30 * time.Second
)

// Collector implements core.MetricsCollector on top of CloudWatch.
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a Collector that publishes to the given namespace
// and starts a background flush loop.
func NewCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *Collector {
	c := &Collector{
		client:    client,
		namespace: namespace,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.flushLoop(defaultFlushInterval)
	return c
}

// RecordRequest buffers a count and a latency datum for one HTTP request.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	now := time.Now().UTC()
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimMethod), Value: aws.String(method)},
		{Name: aws.String(dimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(dimStatus), Value: aws.String(status)},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending,
		cwtypes.MetricDatum{
			MetricName: aws.String(metricRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(now),
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(metricRequestLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Timestamp:  aws.Time(now),
			Dimensions: dims,
		},
	)
}

// Flush drains the buffer and publishes everything accumulated so far.
// The server calls this once during shutdown; the flush loop calls it
// on every tick. Publish failures are logged, not returned to callers
// of RecordRequest, but Flush reports the last error so shutdown can
// surface it.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	var lastErr error
	for len(batch) > 0 {
		n := len(batch)
		if n > flushBatchSize {
			n = flushBatchSize
		}
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[:n],
		}
		if _, err := c.client.PutMetricData(ctx, input); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish request metrics",
				"error", err.Error(),
				"datums", n,
			)
			lastErr = err
		}
		batch = batch[n:]
	}
	return lastErr
}

// Close stops the background flush loop. It does not flush; callers
// flush explicitly via Flush before closing.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = c.Flush(ctx)
			cancel()
		case <-c.stop:
			return
		}
	}
}

// NopCollector discards all metrics. Used when metrics are disabled.
type NopCollector struct{}

func (NopCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {}
