package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultWorkerCount workers share each batch by user affinity, so one user's updates
	// stay in order while different users are served concurrently.
	defaultWorkerCount = 4
	defaultPollTimeout = 30
	retryDelay         = 5 * time.Second
)

// OffsetStore persists the polling offset across restarts.
type OffsetStore interface {
	GetOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, offset int64) error
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *Update) error
}

// UpdateSource is the long-poll side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	DeleteWebhook(ctx context.Context) error
}

type PollingService struct {
	source      UpdateSource
	handler     UpdateHandler
	offsetStore OffsetStore // nil keeps the offset in memory only
	logger      *slog.Logger
	pollTimeout int
	workerCount int

	lastUpdateID int64
	// processedWatermark guards against reprocessing when a restored offset overlaps.
	processedWatermark int64
}

func NewPollingService(source UpdateSource, handler UpdateHandler, offsetStore OffsetStore, pollTimeout int, logger *slog.Logger) *PollingService {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &PollingService{
		source:      source,
		handler:     handler,
		offsetStore: offsetStore,
		logger:      logger,
		pollTimeout: pollTimeout,
		workerCount: defaultWorkerCount,
	}
}

// Run polls until ctx is cancelled.
func (s *PollingService) Run(ctx context.Context) error {
	if s.offsetStore != nil {
		saved, err := s.offsetStore.GetOffset(ctx)
		if err != nil {
			s.logger.Warn("failed to load polling offset, starting from 0", "error", err)
		} else if saved > 0 {
			s.lastUpdateID = saved
			s.processedWatermark = saved
			s.logger.Info("loaded polling offset", "offset", saved)
		}
	}

	if err := s.source.DeleteWebhook(ctx); err != nil {
		s.logger.Warn("failed to delete webhook before polling", "error", err)
	}

	s.logger.Info("telegram polling started", "timeout", s.pollTimeout, "workers", s.workerCount)
	for {
		if ctx.Err() != nil {
			s.logger.Info("telegram polling stopped")
			return nil
		}
		if err := s.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("failed to get updates", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
	}
}

func (s *PollingService) poll(ctx context.Context) error {
	offset := int64(0)
	if s.lastUpdateID > 0 {
		offset = s.lastUpdateID + 1
	}
	updates, err := s.source.GetUpdates(ctx, offset, s.pollTimeout)
	if err != nil {
		return err
	}
	s.dispatch(ctx, updates)
	return nil
}

// dispatch processes one batch and commits the offset only after every worker finished,
// so a crash mid-batch redelivers instead of skipping.
func (s *PollingService) dispatch(ctx context.Context, updates []Update) {
	if len(updates) == 0 {
		return
	}

	var maxUpdateID int64
	buckets := make([][]Update, s.workerCount)
	for _, u := range updates {
		if u.UpdateID > maxUpdateID {
			maxUpdateID = u.UpdateID
		}
		if u.UpdateID <= s.processedWatermark {
			continue
		}
		idx := s.userAffinity(&u)
		buckets[idx] = append(buckets[idx], u)
	}

	var wg sync.WaitGroup
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(worker int, batch []Update) {
			defer wg.Done()
			s.processBatch(ctx, worker, batch)
		}(i, bucket)
	}
	wg.Wait()

	if maxUpdateID <= s.lastUpdateID {
		return
	}
	s.lastUpdateID = maxUpdateID
	s.processedWatermark = maxUpdateID

	if s.offsetStore != nil {
		// The poll context may already be cancelled during shutdown.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.offsetStore.SaveOffset(saveCtx, s.lastUpdateID); err != nil {
			s.logger.Warn("failed to save polling offset", "error", err)
		}
	}
}

func (s *PollingService) processBatch(ctx context.Context, worker int, updates []Update) {
	for i := range updates {
		if ctx.Err() != nil {
			return
		}
		s.handleOne(ctx, worker, &updates[i])
	}
}

func (s *PollingService) handleOne(ctx context.Context, worker int, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in update handler",
				"worker", worker,
				"update_id", u.UpdateID,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	if err := s.handler.HandleUpdate(ctx, u); err != nil {
		s.logger.Error("failed to handle update", "worker", worker, "update_id", u.UpdateID, "error", err)
	}
}

// userAffinity maps an update to a worker by sender, falling back to the update id.
func (s *PollingService) userAffinity(u *Update) int {
	var userID int64
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		userID = u.CallbackQuery.From.ID
	case u.Message != nil && u.Message.From != nil:
		userID = u.Message.From.ID
	default:
		userID = u.UpdateID
	}
	idx := int(userID % int64(s.workerCount))
	if idx < 0 {
		idx += s.workerCount
	}
	return idx
}
