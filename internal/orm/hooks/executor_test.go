package hooks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
	"github.com/conduit-lang/entitycore/internal/orm/storage/memory"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

// orderModel builds Order with the derived Invoice. All values are shadow
// properties so instances are tracked as tracking.ShadowEntity.
func orderModel(t *testing.T) *schema.Model {
	t.Helper()
	m := schema.NewModel()

	order, err := m.AddEntityType("Order")
	require.NoError(t, err)
	id, err := order.AddShadowProperty("Id", schema.TypeInt, schema.WithValueGenerated(schema.ValueGeneratedOnAdd))
	require.NoError(t, err)
	_, err = order.AddShadowProperty("Total", schema.TypeInt, schema.Nullable())
	require.NoError(t, err)
	_, err = order.SetPrimaryKey(id)
	require.NoError(t, err)

	invoice, err := m.AddEntityType("Invoice")
	require.NoError(t, err)
	require.NoError(t, invoice.HasBaseType(order))
	_, err = invoice.AddShadowProperty("Number", schema.TypeString, schema.Nullable())
	require.NoError(t, err)

	require.NoError(t, m.Finalize(nil))
	return m
}

func newOrder() *tracking.ShadowEntity   { return &tracking.ShadowEntity{TypeName: "Order"} }
func newInvoice() *tracking.ShadowEntity { return &tracking.ShadowEntity{TypeName: "Invoice"} }

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.HasHooks(SavingChanges))

	first := &Hook{Name: "first", Fn: func(*Context) error { return nil }}
	second := &Hook{Name: "second", Fn: func(*Context) error { return nil }}
	r.Register(SavingChanges, first)
	r.Register(SavingChanges, second)

	assert.True(t, r.HasHooks(SavingChanges))
	assert.False(t, r.HasHooks(SavedChanges))
	assert.Equal(t, []*Hook{first, second}, r.GetHooks(SavingChanges))
	assert.Equal(t, SavingChanges, first.Event)
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "tracked", Tracked.String())
	assert.Equal(t, "state_changed", StateChanged.String())
	assert.Equal(t, "saving_changes", SavingChanges.String())
	assert.Equal(t, "saved_changes", SavedChanges.String())
	assert.Equal(t, "save_changes_failed", SaveChangesFailed.String())
	assert.Equal(t, "unknown", Event(42).String())
}

func TestExecutor_RegisterValidatesHooks(t *testing.T) {
	x := NewExecutor(nil)
	noop := func(*Context) error { return nil }

	assert.Error(t, x.Register(Tracked, &Hook{}))
	assert.ErrorIs(t, x.Register(SavingChanges, &Hook{Fn: noop, Async: true}), ErrAsyncNotSupported)
	assert.ErrorIs(t, x.Register(SavedChanges, &Hook{Fn: noop, Async: true}), ErrNoAsyncQueue)
	assert.NoError(t, x.Register(SavedChanges, &Hook{Fn: noop}))
	assert.True(t, x.HasHooks(SavedChanges))
	assert.Same(t, x.Registry(), x.Registry())
}

func TestExecutor_RunsHooksThroughTheSaveLifecycle(t *testing.T) {
	m := orderModel(t)
	x := NewExecutor(nil)
	var events []string
	record := func(ctx *Context) error {
		switch ctx.Event() {
		case StateChanged:
			from, to := ctx.Transition()
			events = append(events, fmt.Sprintf("%s %s->%s", ctx.Event(), from, to))
		case SavedChanges:
			events = append(events, fmt.Sprintf("%s %d", ctx.Event(), ctx.Saved()))
		default:
			events = append(events, fmt.Sprintf("%s %d", ctx.Event(), len(ctx.Entries())))
		}
		return nil
	}
	for _, event := range []Event{Tracked, StateChanged, SavingChanges, SavedChanges} {
		require.NoError(t, x.Register(event, &Hook{Fn: record}))
	}

	sm, err := tracking.NewStateManager(m, tracking.WithObserver(x))
	require.NoError(t, err)
	_, err = sm.Add(newOrder())
	require.NoError(t, err)

	n, err := sm.SaveChanges(context.Background(), memory.New(m))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{
		"tracked 1",
		"state_changed Detached->Added",
		"saving_changes 1",
		"state_changed Added->Unchanged",
		"saved_changes 1",
	}, events)
}

func TestExecutor_FailingSavingHookAbortsSave(t *testing.T) {
	m := orderModel(t)
	store := memory.New(m)
	x := NewExecutor(nil)

	var ran []string
	require.NoError(t, x.Register(SavingChanges, &Hook{Name: "audit", Fn: func(*Context) error {
		ran = append(ran, "audit")
		return nil
	}}))
	require.NoError(t, x.Register(SavingChanges, &Hook{Name: "validate", Fn: func(ctx *Context) error {
		ran = append(ran, "validate")
		if ctx.Entry().Value("Total") == nil {
			return errors.New("total is required")
		}
		return nil
	}}))
	require.NoError(t, x.Register(SavingChanges, &Hook{Name: "never", Fn: func(*Context) error {
		ran = append(ran, "never")
		return nil
	}}))

	sm, err := tracking.NewStateManager(m, tracking.WithObserver(x))
	require.NoError(t, err)
	order := newOrder()
	entry, err := sm.Add(order)
	require.NoError(t, err)

	_, err = sm.SaveChanges(context.Background(), store)
	require.EqualError(t, err, "hook validate failed: total is required")
	assert.Equal(t, []string{"audit", "validate"}, ran)
	assert.Equal(t, tracking.Added, entry.State())
	assert.Zero(t, store.Count(m.FindEntityType("Order")))

	require.NoError(t, sm.SetPropertyValue(order, "Total", 10))
	n, err := sm.SaveChanges(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Count(m.FindEntityType("Order")))
}

func TestExecutor_EntityTypeFilterIncludesDerivedTypes(t *testing.T) {
	m := orderModel(t)
	x := NewExecutor(nil)

	var orders, invoices []string
	require.NoError(t, x.Register(SavingChanges, &Hook{EntityType: "Order", Fn: func(ctx *Context) error {
		for _, e := range ctx.Entries() {
			orders = append(orders, e.EntityType().Name())
		}
		return nil
	}}))
	require.NoError(t, x.Register(SavingChanges, &Hook{EntityType: "Invoice", Fn: func(ctx *Context) error {
		for _, e := range ctx.Entries() {
			invoices = append(invoices, e.EntityType().Name())
		}
		return nil
	}}))

	sm, err := tracking.NewStateManager(m, tracking.WithObserver(x))
	require.NoError(t, err)
	_, err = sm.Add(newOrder())
	require.NoError(t, err)
	_, err = sm.Add(newInvoice())
	require.NoError(t, err)

	_, err = sm.SaveChanges(context.Background(), memory.New(m))
	require.NoError(t, err)
	assert.Equal(t, []string{"Order", "Invoice"}, orders)
	assert.Equal(t, []string{"Invoice"}, invoices)
}

func TestExecutor_SkipsFilteredHookWithoutMatchingEntries(t *testing.T) {
	m := orderModel(t)
	x := NewExecutor(nil)
	called := false
	require.NoError(t, x.Register(SavingChanges, &Hook{EntityType: "Invoice", Fn: func(*Context) error {
		called = true
		return nil
	}}))

	sm, err := tracking.NewStateManager(m, tracking.WithObserver(x))
	require.NoError(t, err)
	_, err = sm.Add(newOrder())
	require.NoError(t, err)
	_, err = sm.SaveChanges(context.Background(), memory.New(m))
	require.NoError(t, err)
	assert.False(t, called)
}

func TestExecutor_LogsFailuresOfNotificationHooks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	x := NewExecutor(nil, WithLogger(zap.New(core)))
	require.NoError(t, x.Register(Tracked, &Hook{Name: "broken", Fn: func(*Context) error {
		return errors.New("boom")
	}}))

	sm, err := tracking.NewStateManager(orderModel(t), tracking.WithObserver(x))
	require.NoError(t, err)
	_, err = sm.Add(newOrder())
	require.NoError(t, err)

	entries := logs.FilterMessage("lifecycle hook failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hook broken failed: boom", entries[0].ContextMap()["error"])
}

var errDiskFull = errors.New("disk full")

type failingStore struct{}

func (failingStore) Save(context.Context, []storage.Command) ([]storage.Result, error) {
	return nil, errDiskFull
}

func TestExecutor_SaveChangesFailedHook(t *testing.T) {
	x := NewExecutor(nil)
	var failure error
	require.NoError(t, x.Register(SaveChangesFailed, &Hook{Fn: func(ctx *Context) error {
		failure = ctx.Failure()
		return nil
	}}))

	sm, err := tracking.NewStateManager(orderModel(t), tracking.WithObserver(x))
	require.NoError(t, err)
	entry, err := sm.Add(newOrder())
	require.NoError(t, err)

	_, err = sm.SaveChanges(context.Background(), failingStore{})
	require.ErrorIs(t, err, errDiskFull)
	assert.ErrorIs(t, failure, errDiskFull)
	assert.Equal(t, tracking.Added, entry.State())
}

func TestExecutor_AsyncHooksRunOnQueue(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	queue.Start()
	defer queue.Shutdown()

	x := NewExecutor(queue)
	done := make(chan int, 1)
	require.NoError(t, x.Register(SavedChanges, &Hook{Name: "notify", Async: true, Fn: func(ctx *Context) error {
		done <- ctx.Saved()
		return ctx.Err()
	}}))

	m := orderModel(t)
	sm, err := tracking.NewStateManager(m, tracking.WithObserver(x))
	require.NoError(t, err)
	_, err = sm.Add(newOrder())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = sm.SaveChanges(ctx, memory.New(m))
	cancel()
	require.NoError(t, err)

	select {
	case saved := <-done:
		assert.Equal(t, 1, saved)
	case <-time.After(2 * time.Second):
		t.Fatal("async hook did not run")
	}
}
