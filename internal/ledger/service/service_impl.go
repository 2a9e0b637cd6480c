package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/clock"
	"github.com/trackchain/trackway/internal/ledger/domain"
	obsmetrics "github.com/trackchain/trackway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Service serializes every mutating transition through a single writer
// goroutine, giving the commit log strict sequential ordering. Reads run
// concurrently against committed state; only commits pass through here.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	requests chan commitRequest

	mu       sync.Mutex
	running  bool
	stopped  chan struct{}
	sequence int64
}

type commitRequest struct {
	ctx        context.Context
	transition domain.Transition
	result     chan commitResult
}

type commitResult struct {
	receipt *domain.Receipt
	err     error
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ledger.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
		requests: make(chan commitRequest),
	}
}

// Start loads the last committed sequence and launches the writer loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	var last struct {
		Sequence int64 `gorm:"column:sequence"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) AS sequence FROM ledger_commits`,
	).Scan(&last).Error
	if err != nil {
		return err
	}

	s.sequence = last.Sequence
	s.stopped = make(chan struct{})
	s.running = true
	go s.run(s.stopped)

	s.log.Info("ledger writer started", zap.Int64("sequence", s.sequence))
	return nil
}

// Stop drains the writer loop. In-flight commits finish before Stop returns.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stopped)
	s.running = false
	return nil
}

// Commit submits the transition to the writer loop and awaits its receipt.
// Once submitted a commit cannot be retracted; the caller blocks until the
// transition either commits or is rejected.
func (s *Service) Commit(ctx context.Context, t domain.Transition) (*domain.Receipt, error) {
	if t.Apply == nil {
		return nil, domain.ErrNilApply
	}
	if strings.TrimSpace(string(t.Kind)) == "" {
		return nil, domain.ErrInvalidKind
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, domain.ErrLedgerStopped
	}
	stopped := s.stopped
	s.mu.Unlock()

	req := commitRequest{
		ctx:        ctx,
		transition: t,
		result:     make(chan commitResult, 1),
	}

	select {
	case s.requests <- req:
	case <-stopped:
		return nil, domain.ErrLedgerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Submitted: await the receipt unconditionally. There is no
	// cancellation of an in-flight commit.
	res := <-req.result
	return res.receipt, res.err
}

func (s *Service) run(stopped chan struct{}) {
	for {
		select {
		case req := <-s.requests:
			receipt, err := s.apply(req.ctx, req.transition)
			req.result <- commitResult{receipt: receipt, err: err}
		case <-stopped:
			return
		}
	}
}

func (s *Service) apply(ctx context.Context, t domain.Transition) (*domain.Receipt, error) {
	now := s.clock.Now()
	next := s.sequence + 1
	commit := domain.Commit{
		ID:           s.genID.Generate(),
		Sequence:     next,
		Kind:         t.Kind,
		ResourceCost: t.ResourceCost,
		CommittedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := t.Apply(ctx, tx); err != nil {
			return err
		}
		return tx.Create(&commit).Error
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncCommitRejected(ctx, string(t.Kind))
		}
		return nil, err
	}

	s.sequence = next
	if s.metrics != nil {
		s.metrics.IncCommit(ctx, string(t.Kind))
		s.metrics.ObserveCommitDuration(ctx, string(t.Kind), s.clock.Now().Sub(now))
	}

	return &domain.Receipt{
		OpID:         commit.ID,
		Sequence:     commit.Sequence,
		ResourceCost: commit.ResourceCost,
		CommittedAt:  commit.CommittedAt,
	}, nil
}
