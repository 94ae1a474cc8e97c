package scheduler

import (
	"errors"
	"testing"

	"stock-charter/src/logger"
	"stock-charter/src/models"

	"github.com/stretchr/testify/assert"
)

func newTestScheduler() *Scheduler {
	cfg := &models.MConfig{
		Scheduler: models.MSchedulerConfig{MaxRetries: 3},
	}
	return &Scheduler{
		Config: cfg,
		Queue:  NewUpdateQueue(),
		Logger: logger.NewLogger("ERROR", "test"),
	}
}

// -----------------------------------------------------------------------------

func TestResolve_SuccessLeavesQueue(t *testing.T) {
	s := newTestScheduler()

	item := s.Queue.Push("AAPL", models.UpdateTypePrice, 2)
	popped := s.Queue.Pop()
	assert.Equal(t, item, popped)

	s.Resolve(popped, nil)

	assert.Equal(t, StateSucceeded, popped.State)
	assert.Equal(t, 0, s.Queue.Len(), "successful item must not be requeued")
}

// -----------------------------------------------------------------------------

func TestResolve_RetryableFailureRequeuesWithDecayedPriority(t *testing.T) {
	s := newTestScheduler()

	s.Queue.Push("AAPL", models.UpdateTypePrice, 1)
	item := s.Queue.Pop()

	s.Resolve(item, errors.New("transient"))

	assert.Equal(t, StatePending, item.State, "requeue returns the item to pending")
	assert.Equal(t, 1, item.Retries)
	assert.Equal(t, 2, item.Priority, "retry decays one priority tier")
	assert.Equal(t, 1, s.Queue.Len())
}

// -----------------------------------------------------------------------------

func TestResolve_PriorityDecayCapsAtLowestTier(t *testing.T) {
	s := newTestScheduler()

	s.Queue.Push("AAPL", models.UpdateTypePrice, models.PriorityLowest)
	item := s.Queue.Pop()

	s.Resolve(item, errors.New("transient"))

	assert.Equal(t, models.PriorityLowest, item.Priority, "priority never decays past the lowest tier")
}

// -----------------------------------------------------------------------------

func TestResolve_TerminalAfterMaxRetries(t *testing.T) {
	s := newTestScheduler()

	s.Queue.Push("AAPL", models.UpdateTypePrice, 2)

	for attempt := 1; attempt <= 3; attempt++ {
		item := s.Queue.Pop()
		assert.NotNil(t, item, "attempt %d should find the item queued", attempt)
		s.Resolve(item, errors.New("still broken"))

		if attempt < 3 {
			assert.Equal(t, StateFailedRetryable, item.State)
		} else {
			assert.Equal(t, StateFailedTerminal, item.State, "third failure is terminal")
		}
	}

	assert.Equal(t, 0, s.Queue.Len(), "terminal item must be dropped, not requeued")
}

// -----------------------------------------------------------------------------

func TestEnqueue_RejectsUnknownUpdateType(t *testing.T) {
	s := newTestScheduler()

	s.Enqueue("AAPL", "dividends", 2)
	assert.Equal(t, 0, s.Queue.Len())

	s.Enqueue("AAPL", models.UpdateTypePrice, 2)
	assert.Equal(t, 1, s.Queue.Len())
}

// -----------------------------------------------------------------------------

func TestMaxRetries_DefaultsWhenUnset(t *testing.T) {
	s := newTestScheduler()
	s.Config.Scheduler.MaxRetries = 0
	assert.Equal(t, 3, s.maxRetries())

	s.Config.Scheduler.MaxRetries = 5
	assert.Equal(t, 5, s.maxRetries())
}

// -----------------------------------------------------------------------------

func TestBatchLimit_DefaultsWhenUnset(t *testing.T) {
	s := newTestScheduler()
	assert.Equal(t, 25, s.batchLimit())

	s.Config.Scheduler.BatchLimit = 10
	assert.Equal(t, 10, s.batchLimit())
}
