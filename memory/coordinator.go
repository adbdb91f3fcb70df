package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Coordinator combines semantic store access with an importance
// classification step (delegated to the generation collaborator) to decide
// what to persist and what to recall.
//
// Recall never raises: store unavailability or empty results yield an empty
// context string. Remember is fire-and-forget: it is scheduled on a
// background scope tied to the coordinator's lifetime, never to the
// originating turn, and its failures are only logged.
type Coordinator struct {
	store      *SemanticStore
	classifier core.Generator
	logger     logging.Logger

	recallK         int
	queryTurns      int
	rememberTimeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// CoordinatorOptions holds optional overrides for a Coordinator.
type CoordinatorOptions struct {
	// RecallK is how many memories a recall retrieves. Default: 5.
	RecallK int
	// QueryTurns is how many recent turns build the recall query. Default: 3.
	QueryTurns int
	// RememberTimeout bounds each background remember. Default: 30s.
	RememberTimeout time.Duration
	// Logger receives recall/remember logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewCoordinator creates a coordinator over the given store and classifier.
func NewCoordinator(store *SemanticStore, classifier core.Generator, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		RecallK:         5,
		QueryTurns:      3,
		RememberTimeout: 30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:           store,
		classifier:      classifier,
		logger:          opts.Logger,
		recallK:         opts.RecallK,
		queryTurns:      opts.QueryTurns,
		rememberTimeout: opts.RememberTimeout,
		baseCtx:         baseCtx,
		cancel:          cancel,
	}
}

// Recall builds a query from the most recent turns, searches the session's
// memories and formats the hits as a bullet list. It returns an empty string
// on no results or store unavailability, never an error.
func (c *Coordinator) Recall(ctx context.Context, recentTurns []core.Message, sessionID string) string {
	query := c.buildQuery(recentTurns)
	if query == "" {
		return ""
	}

	results, err := c.store.Search(ctx, query, c.recallK, sessionID)
	if err != nil {
		c.logger.Warn("memory recall failed session=%s err=%v", sessionID, err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, res := range results {
		b.WriteString("- ")
		b.WriteString(res.Record.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Remember schedules a background classification-and-store of the message.
// It returns immediately; the write happens off the turn's critical path and
// its failure is logged, never surfaced.
func (c *Coordinator) Remember(msg core.Message, sessionID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.baseCtx, c.rememberTimeout)
		defer cancel()

		kind, durable, err := c.classifier.Classify(ctx, msg.Text)
		if err != nil {
			c.logger.Warn("memory classification failed session=%s err=%v", sessionID, err)
			return
		}
		if !durable {
			c.logger.Debug("message not durable, skipping store session=%s", sessionID)
			return
		}

		res, err := c.store.Store(ctx, msg.Text, kind, sessionID)
		if err != nil {
			c.logger.Warn("memory store failed session=%s err=%v", sessionID, err)
			return
		}
		c.logger.Debug("memory remember outcome=%s session=%s", res.Outcome, sessionID)
	}()
}

// Flush blocks until all in-flight remembers finish. Test and shutdown helper.
func (c *Coordinator) Flush() { c.wg.Wait() }

// Shutdown waits for in-flight remembers up to the context deadline, then
// cancels the background scope.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	c.cancel()
	return ctx.Err()
}

// buildQuery concatenates the text of the last queryTurns messages.
func (c *Coordinator) buildQuery(recentTurns []core.Message) string {
	if len(recentTurns) == 0 {
		return ""
	}
	start := len(recentTurns) - c.queryTurns
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, len(recentTurns)-start)
	for _, m := range recentTurns[start:] {
		if m.Text != "" {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n")
}
