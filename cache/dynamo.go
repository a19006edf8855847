package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// DynamoAPI is the subset of the DynamoDB client the cache needs. Declared
// here so tests can substitute a fake.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// dynamoItem is the table item shape. ExpiresAt doubles as the table's TTL
// attribute so DynamoDB reaps stale verdicts server side.
type dynamoItem struct {
	Fingerprint string   `dynamodbav:"fingerprint"`
	Verdict     string   `dynamodbav:"verdict"`
	Confidence  float64  `dynamodbav:"confidence"`
	Sources     []string `dynamodbav:"sources,omitempty"`
	ComputedAt  string   `dynamodbav:"computed_at"`
	TTLSeconds  int64    `dynamodbav:"ttl_seconds"`
	ExpiresAt   int64    `dynamodbav:"expires_at,omitempty"`
}

// DynamoOptions configure the DynamoDB cache tier.
type DynamoOptions struct {
	// BatchSize triggers a flush once this many verdicts are pending.
	// DynamoDB caps batch writes at 25 items.
	BatchSize int
	// FlushInterval triggers a flush of whatever is pending on a timer.
	FlushInterval time.Duration
	Logger        logging.Logger
}

// DynamoCache stores verdicts in a DynamoDB table. Reads are synchronous;
// writes are buffered and flushed in batches either when the buffer reaches
// BatchSize or when FlushInterval elapses.
type DynamoCache struct {
	client DynamoAPI
	table  string
	opts   DynamoOptions

	mu      sync.Mutex
	pending []*core.VerificationVerdict

	flushCh chan struct{}
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewDynamoCache constructs the tier and starts its background flusher.
func NewDynamoCache(client DynamoAPI, table string, optFns ...func(o *DynamoOptions)) *DynamoCache {
	opts := DynamoOptions{
		BatchSize:     25,
		FlushInterval: 5 * time.Minute,
		Logger:        logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 25 {
		opts.BatchSize = 25
	}

	c := &DynamoCache{
		client:  client,
		table:   table,
		opts:    opts,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.flushLoop()
	return c
}

// Get implements core.VerificationCache.
func (c *DynamoCache) Get(ctx context.Context, fingerprint string) (*core.VerificationVerdict, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"fingerprint": &types.AttributeValueMemberS{Value: fingerprint},
		},
	})
	if err != nil {
		return nil, core.Transient("dynamo cache get", err)
	}
	if out.Item == nil {
		return nil, core.ErrCacheMiss
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamo cache get: decode item: %w", err)
	}

	verdict, err := item.toVerdict()
	if err != nil {
		return nil, fmt.Errorf("dynamo cache get: %w", err)
	}
	if verdict.Expired(c.now()) {
		// Server side TTL reaping lags; treat as a miss meanwhile.
		return nil, core.ErrCacheMiss
	}
	return verdict, nil
}

// Put implements core.VerificationCache. The verdict is buffered; the write
// reaches DynamoDB on the next flush.
func (c *DynamoCache) Put(_ context.Context, verdict *core.VerificationVerdict) error {
	c.mu.Lock()
	c.pending = append(c.pending, verdict.Clone())
	full := len(c.pending) >= c.opts.BatchSize
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// PendingWrites returns the number of buffered verdicts not yet flushed.
func (c *DynamoCache) PendingWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ForceFlush synchronously writes all buffered verdicts.
func (c *DynamoCache) ForceFlush(ctx context.Context) error {
	return c.flush(ctx)
}

// Close stops the background flusher after a final flush.
func (c *DynamoCache) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = c.flush(ctx)
	})
	return err
}

func (c *DynamoCache) flushLoop() {
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		case <-c.flushCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := c.flush(ctx); err != nil {
			c.opts.Logger.Warn("dynamo cache flush failed", "error", err)
		}
		cancel()
	}
}

func (c *DynamoCache) flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	for start := 0; start < len(batch); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := c.writeBatch(ctx, batch[start:end]); err != nil {
			// Requeue what we could not write so the next flush retries it.
			c.mu.Lock()
			c.pending = append(c.pending, batch[start:]...)
			c.mu.Unlock()
			return err
		}
	}

	c.opts.Logger.Debug("dynamo cache flushed", "count", len(batch))
	return nil
}

func (c *DynamoCache) writeBatch(ctx context.Context, verdicts []*core.VerificationVerdict) error {
	requests := make([]types.WriteRequest, 0, len(verdicts))
	for _, v := range verdicts {
		item, err := attributevalue.MarshalMap(fromVerdict(v))
		if err != nil {
			return fmt.Errorf("dynamo cache flush: encode item: %w", err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{c.table: requests},
	}

	// DynamoDB may return unprocessed items under throttling; retry the
	// remainder a few times before giving up.
	for attempt := 0; attempt < 3; attempt++ {
		out, err := c.client.BatchWriteItem(ctx, input)
		if err != nil {
			return core.Transient("dynamo cache flush", err)
		}
		remaining := out.UnprocessedItems[c.table]
		if len(remaining) == 0 {
			return nil
		}
		input.RequestItems = map[string][]types.WriteRequest{c.table: remaining}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return core.Transient("dynamo cache flush", fmt.Errorf("unprocessed items remained after retries"))
}

func fromVerdict(v *core.VerificationVerdict) dynamoItem {
	item := dynamoItem{
		Fingerprint: v.Fingerprint,
		Verdict:     string(v.Verdict),
		Confidence:  v.Confidence,
		Sources:     v.Sources,
		ComputedAt:  v.ComputedAt.UTC().Format(time.RFC3339Nano),
		TTLSeconds:  int64(v.TTL / time.Second),
	}
	if v.TTL > 0 {
		item.ExpiresAt = v.ComputedAt.Add(v.TTL).Unix()
	}
	return item
}

func (i *dynamoItem) toVerdict() (*core.VerificationVerdict, error) {
	computedAt, err := time.Parse(time.RFC3339Nano, i.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("parse computed_at: %w", err)
	}
	return &core.VerificationVerdict{
		Fingerprint: i.Fingerprint,
		Verdict:     core.Verdict(i.Verdict),
		Confidence:  i.Confidence,
		Sources:     i.Sources,
		ComputedAt:  computedAt,
		TTL:         time.Duration(i.TTLSeconds) * time.Second,
	}, nil
}
