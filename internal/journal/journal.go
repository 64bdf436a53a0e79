package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/stockdesk/internal/model"
)

const (
	createHistoryTable = `
		CREATE TABLE IF NOT EXISTS order_history (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			quantity   INTEGER NOT NULL,
			price      NUMERIC(18,4) NOT NULL,
			status     TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`
	insertHistory = `
		INSERT INTO order_history (id, symbol, side, quantity, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
)

// DB is the subset of *pgxpool.Pool used by the journal.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds journal settings.
type Config struct {
	BatchSize     int           // Max rows before flush
	FlushInterval time.Duration // Max time before flush
	BufferSize    int           // Pending order capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics tracks journal activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Dropped   int64
	Flushes   int64
}

// historyRow is one order_history row.
type historyRow struct {
	ID        string
	Symbol    string
	Side      string
	Quantity  int
	Price     decimal.Decimal
	Status    string
	CreatedAt int64
	UpdatedAt int64
}

// Journal batches terminal orders into order_history.
type Journal struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	input chan model.Order

	// Batching
	batch   []historyRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a Journal writing to db.
func New(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		input:  make(chan model.Order, cfg.BufferSize),
		batch:  make([]historyRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the order_history table if needed.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	_, err := j.db.Exec(ctx, createHistoryTable)
	return err
}

// Record queues a terminal order for insertion. Non-terminal orders are
// ignored. Never blocks.
func (j *Journal) Record(o model.Order) {
	if !o.Status.IsTerminal() {
		return
	}
	select {
	case j.input <- o:
	default:
		j.batchMu.Lock()
		j.metrics.Dropped++
		j.batchMu.Unlock()
		j.logger.Warn("journal buffer full, dropping order", "id", o.ID)
	}
}

// Start begins consuming orders and writing to the database.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.run()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop drains buffered orders and flushes them.
func (j *Journal) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		return ctx.Err()
	}

	// Final flush of anything still buffered.
	for {
		select {
		case o := <-j.input:
			j.add(o)
		default:
			j.flush(ctx)
			j.logger.Info("journal stopped")
			return nil
		}
	}
}

// Stats returns current metrics.
func (j *Journal) Stats() Metrics {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.metrics
}

func (j *Journal) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case o := <-j.input:
			if j.add(o) {
				j.flush(j.ctx)
			}
		case <-ticker.C:
			j.flush(j.ctx)
		}
	}
}

// add appends o to the batch and reports whether the batch is full.
func (j *Journal) add(o model.Order) bool {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	j.batch = append(j.batch, transform(o))
	return len(j.batch) >= j.cfg.BatchSize
}

func transform(o model.Order) historyRow {
	return historyRow{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Quantity:  o.Quantity,
		Price:     decimal.NewFromFloat(o.Price).Round(4),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// flush writes the current batch to the database.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]historyRow, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()

	conflicts, err := j.batchInsert(ctx, batch)
	if err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.metrics.Errors++
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.metrics.Inserts += int64(len(batch) - conflicts)
	j.metrics.Conflicts += int64(conflicts)
	j.metrics.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed orders",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (j *Journal) batchInsert(ctx context.Context, rows []historyRow) (conflicts int, err error) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertHistory, r.ID, r.Symbol, r.Side, r.Quantity, r.Price, r.Status, r.CreatedAt, r.UpdatedAt)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
