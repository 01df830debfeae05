package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"github.com/kursadbilgin/notify-daemon/internal/observability"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 500

// ClientDispatcher notifies a single claimed client and returns what was recorded.
type ClientDispatcher interface {
	Dispatch(ctx context.Context, client domain.Client) domain.Outcome
}

// CycleResult summarizes one claim-and-dispatch cycle.
type CycleResult struct {
	CycleID  string
	Claimed  int
	Notified int
	Errored  int
}

// BatchProcessor claims a batch of pending clients and dispatches all of them concurrently.
type BatchProcessor struct {
	clients    repository.ClientRepository
	dispatcher ClientDispatcher
	procName   string
	batchSize  int
	logger     *zap.Logger
	metrics    *observability.Metrics
	newCycleID func() string
}

func NewBatchProcessor(
	clients repository.ClientRepository,
	dispatcher ClientDispatcher,
	procName string,
	batchSize int,
	logger *zap.Logger,
) (*BatchProcessor, error) {
	if clients == nil {
		return nil, fmt.Errorf("client repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if strings.TrimSpace(procName) == "" {
		return nil, fmt.Errorf("proc name is required")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchProcessor{
		clients:    clients,
		dispatcher: dispatcher,
		procName:   procName,
		batchSize:  batchSize,
		logger:     logger,
		newCycleID: uuid.NewString,
	}, nil
}

func (p *BatchProcessor) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// ProcessBatch runs one cycle. Claimed clients are always dispatched to
// completion, even if ctx is cancelled after the claim.
func (p *BatchProcessor) ProcessBatch(ctx context.Context) (result CycleResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result.CycleID = p.newCycleID()
	ctx = observability.WithCycleID(ctx, result.CycleID)
	logger := observability.WithContextLogger(p.logger, ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch processing panicked: %v", r)
		}
		p.recordCycle(result, err)
	}()

	logger.Debug("fetching pending clients", zap.Int("limit", p.batchSize))
	claimed, err := p.clients.ClaimBatch(ctx, p.batchSize, p.procName)
	if err != nil {
		return result, fmt.Errorf("failed to claim pending clients: %w", err)
	}

	result.Claimed = len(claimed)
	p.metrics.AddClientsClaimed(result.Claimed)
	if result.Claimed == 0 {
		logger.Debug("no pending clients")
		return result, nil
	}
	logger.Info("claimed pending clients", zap.Int("count", result.Claimed))

	outcomes := p.dispatchAll(context.WithoutCancel(ctx), claimed, logger)
	for _, outcome := range outcomes {
		if outcome.Status == domain.StatusNotified {
			result.Notified++
		} else {
			result.Errored++
		}
	}

	logger.Info("batch dispatched",
		zap.Int("notified", result.Notified),
		zap.Int("errored", result.Errored),
	)
	return result, nil
}

func (p *BatchProcessor) dispatchAll(ctx context.Context, claimed []domain.Client, logger *zap.Logger) []domain.Outcome {
	outcomes := make([]domain.Outcome, len(claimed))

	var g errgroup.Group
	for i := range claimed {
		client := claimed[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = domain.Outcome{ClientID: client.ID, Status: domain.StatusError}
					logger.Error("client dispatch panicked",
						zap.Int64("clientId", client.ID),
						zap.Any("panic", r),
					)
				}
			}()

			outcomes[i] = p.dispatcher.Dispatch(ctx, client)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *BatchProcessor) recordCycle(result CycleResult, err error) {
	switch {
	case err != nil:
		p.metrics.IncCycle(observability.CycleResultFailed)
	case result.Claimed == 0:
		p.metrics.IncCycle(observability.CycleResultEmpty)
	default:
		p.metrics.IncCycle(observability.CycleResultDispatched)
	}
}
