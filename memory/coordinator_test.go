package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

// stubClassifier scripts classification results per text. Generate is never
// used by the coordinator.
type stubClassifier struct {
	mu      sync.Mutex
	durable map[string]core.MemoryKind
	err     error
	calls   int
}

func newStubClassifier() *stubClassifier {
	return &stubClassifier{durable: map[string]core.MemoryKind{}}
}

func (c *stubClassifier) Generate(context.Context, string, []core.Message) (string, error) {
	return "", fmt.Errorf("not a generator")
}

func (c *stubClassifier) Classify(_ context.Context, text string) (core.MemoryKind, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", false, c.err
	}
	if kind, ok := c.durable[text]; ok {
		return kind, true, nil
	}
	return "", false, nil
}

func newTestCoordinator(t *testing.T, emb core.Embedder) (*Coordinator, *SemanticStore, *stubClassifier) {
	t.Helper()
	store := NewSemanticStore(NewInMemoryIndex(), emb)
	classifier := newStubClassifier()
	return NewCoordinator(store, classifier), store, classifier
}

func TestCoordinator_RecallFormatsResults(t *testing.T) {
	coord, store, _ := newTestCoordinator(t, NewMockEmbedder(0))
	ctx := context.Background()

	_, err := store.Store(ctx, "user's name is Alex", core.MemoryFact, "s1")
	require.NoError(t, err)

	got := coord.Recall(ctx, []core.Message{core.NewUserMessage("user's name is Alex")}, "s1")
	assert.Contains(t, got, "Relevant memories:\n")
	assert.Contains(t, got, "- user's name is Alex\n")
}

func TestCoordinator_RecallEmptyCases(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, NewMockEmbedder(0))
	ctx := context.Background()

	assert.Empty(t, coord.Recall(ctx, nil, "s1"), "no recent turns yields empty context")
	assert.Empty(t, coord.Recall(ctx, []core.Message{core.NewUserMessage("anything")}, "s1"), "no stored memories yields empty context")
}

func TestCoordinator_RecallIsIdempotent(t *testing.T) {
	coord, store, _ := newTestCoordinator(t, NewMockEmbedder(0))
	ctx := context.Background()

	for _, text := range []string{"likes rainy mornings", "works as a carpenter", "afraid of heights"} {
		res, err := store.Store(ctx, text, core.MemoryFact, "s1")
		require.NoError(t, err)
		require.Equal(t, core.OutcomeStored, res.Outcome)
	}

	turns := []core.Message{core.NewUserMessage("tell me about my work and hobbies")}
	first := coord.Recall(ctx, turns, "s1")
	second := coord.Recall(ctx, turns, "s1")
	assert.Equal(t, first, second, "identical inputs with no writes between must return identical results")
}

func TestCoordinator_RecallSessionIsolation(t *testing.T) {
	coord, store, _ := newTestCoordinator(t, NewMockEmbedder(0))
	ctx := context.Background()

	_, err := store.Store(ctx, "user's name is Alex", core.MemoryFact, "s1")
	require.NoError(t, err)

	other := coord.Recall(ctx, []core.Message{core.NewUserMessage("user's name is Alex")}, "s2")
	assert.NotContains(t, other, "Alex", "another session must not see s1 memories")
}

func TestCoordinator_RememberStoresDurableMessages(t *testing.T) {
	coord, store, classifier := newTestCoordinator(t, NewMockEmbedder(0))
	classifier.durable["I live in Lisbon"] = core.MemoryFact

	coord.Remember(core.NewUserMessage("I live in Lisbon"), "s1")
	coord.Flush()

	results, err := store.Search(context.Background(), "I live in Lisbon", 5, "s1")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "I live in Lisbon", results[0].Record.Text)
	assert.Equal(t, core.MemoryFact, results[0].Record.Kind)
}

func TestCoordinator_RememberSkipsEphemeralMessages(t *testing.T) {
	coord, store, classifier := newTestCoordinator(t, NewMockEmbedder(0))

	coord.Remember(core.NewUserMessage("how is the weather"), "s1")
	coord.Flush()

	assert.Equal(t, 1, classifier.calls)
	health := store.Health(context.Background())
	assert.Equal(t, 0, health.RecordCount)
}

func TestCoordinator_RememberAbsorbsClassifierFailure(t *testing.T) {
	coord, store, classifier := newTestCoordinator(t, NewMockEmbedder(0))
	classifier.err = fmt.Errorf("classifier down")

	coord.Remember(core.NewUserMessage("I live in Lisbon"), "s1")
	coord.Flush()

	health := store.Health(context.Background())
	assert.Equal(t, 0, health.RecordCount, "failures are logged, never surfaced")
}

func TestCoordinator_ShutdownDrainsInFlightWrites(t *testing.T) {
	coord, store, classifier := newTestCoordinator(t, NewMockEmbedder(0))
	classifier.durable["remember me"] = core.MemoryPreference

	coord.Remember(core.NewUserMessage("remember me"), "s1")
	require.NoError(t, coord.Shutdown(context.Background()))

	results, err := store.Search(context.Background(), "remember me", 5, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestCoordinator_QueryUsesLastTurnsOnly(t *testing.T) {
	store := NewSemanticStore(NewInMemoryIndex(), NewMockEmbedder(0))
	coord := NewCoordinator(store, newStubClassifier(), func(o *CoordinatorOptions) {
		o.QueryTurns = 2
	})

	query := coord.buildQuery([]core.Message{
		core.NewUserMessage("one"),
		core.NewUserMessage("two"),
		core.NewUserMessage("three"),
	})
	assert.Equal(t, "two\nthree", query)
}
