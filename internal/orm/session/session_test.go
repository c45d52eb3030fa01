package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/entitycore/internal/orm/hooks"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
	"github.com/conduit-lang/entitycore/internal/orm/storage/memory"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

// customerModel builds Customer 1-* Order with shadow properties only
func customerModel(t *testing.T) *schema.Model {
	t.Helper()
	m := schema.NewModel()

	customer, err := m.AddEntityType("Customer")
	require.NoError(t, err)
	customerID, err := customer.AddShadowProperty("Id", schema.TypeInt, schema.WithValueGenerated(schema.ValueGeneratedOnAdd))
	require.NoError(t, err)
	_, err = customer.AddShadowProperty("Name", schema.TypeString, schema.Nullable())
	require.NoError(t, err)
	_, err = customer.AddShadowProperty("Tier", schema.TypeInt, schema.Nullable())
	require.NoError(t, err)
	customerKey, err := customer.SetPrimaryKey(customerID)
	require.NoError(t, err)

	order, err := m.AddEntityType("Order")
	require.NoError(t, err)
	orderID, err := order.AddShadowProperty("Id", schema.TypeInt, schema.WithValueGenerated(schema.ValueGeneratedOnAdd))
	require.NoError(t, err)
	customerFK, err := order.AddShadowProperty("CustomerId", schema.TypeInt)
	require.NoError(t, err)
	_, err = order.SetPrimaryKey(orderID)
	require.NoError(t, err)
	_, err = order.AddForeignKey([]*schema.Property{customerFK}, customerKey, customer)
	require.NoError(t, err)

	require.NoError(t, m.Finalize(nil))
	return m
}

func newCustomer(t *testing.T, s *Session, name string, tier int) *tracking.ShadowEntity {
	t.Helper()
	c := &tracking.ShadowEntity{TypeName: "Customer"}
	_, err := s.Add(c)
	require.NoError(t, err)
	require.NoError(t, s.StateManager().SetPropertyValue(c, "Name", name))
	require.NoError(t, s.StateManager().SetPropertyValue(c, "Tier", tier))
	return c
}

func seed(t *testing.T, m *schema.Model, store storage.Store) {
	t.Helper()
	s, err := New(m, WithStore(store))
	require.NoError(t, err)
	newCustomer(t, s, "ada", 1)
	newCustomer(t, s, "grace", 3)
	newCustomer(t, s, "linus", 2)
	n, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestNew_AssemblesOneUnitOfWork(t *testing.T) {
	m := customerModel(t)
	first, err := New(m)
	require.NoError(t, err)
	second, err := New(m)
	require.NoError(t, err)

	assert.Same(t, first.StateManager().ChangeDetector(), first.ChangeDetector())
	assert.Same(t, first.StateManager().NavigationFixer(), first.NavigationFixer())
	assert.NotSame(t, first.StateManager(), second.StateManager())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, m, first.Model())

	_, err = New(schema.NewModel())
	assert.ErrorIs(t, err, tracking.ErrModelNotFinalized)
}

func TestSession_RequiresStoreAndProvider(t *testing.T) {
	m := customerModel(t)
	s, err := New(m)
	require.NoError(t, err)

	_, err = s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)

	expr, err := query.From(m.FindEntityType("Customer")).Build()
	require.NoError(t, err)
	_, err = s.Query(context.Background(), expr)
	assert.ErrorIs(t, err, ErrNoQueryProvider)
	_, err = s.Scalar(context.Background(), expr)
	assert.ErrorIs(t, err, ErrNoQueryProvider)
}

func TestSession_QueryMaterializesTrackedInstances(t *testing.T) {
	m := customerModel(t)
	store := memory.New(m)
	seed(t, m, store)
	customer := m.FindEntityType("Customer")

	s, err := New(m, WithStore(store))
	require.NoError(t, err)
	expr, err := query.From(customer).Where("Tier", query.OpGreaterThan, 1).OrderByDesc("Tier").Build()
	require.NoError(t, err)

	results, err := s.Query(context.Background(), expr)
	require.NoError(t, err)
	require.Len(t, results, 2)
	var names []interface{}
	for _, r := range results {
		e := s.Entry(r)
		require.NotNil(t, e)
		assert.Equal(t, tracking.Unchanged, e.State())
		names = append(names, e.Value("Name"))
	}
	assert.Equal(t, []interface{}{"grace", "linus"}, names)

	again, err := s.Query(context.Background(), expr)
	require.NoError(t, err)
	assert.Same(t, results[0], again[0])
	assert.Len(t, s.StateManager().Entries(), 2)

	count, err := query.From(customer).Count()
	require.NoError(t, err)
	n, err := s.Scalar(context.Background(), count)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSession_Find(t *testing.T) {
	m := customerModel(t)
	store := memory.New(m)
	seed(t, m, store)
	customer := m.FindEntityType("Customer")
	ctx := context.Background()

	s, err := New(m, WithStore(store))
	require.NoError(t, err)

	found, err := s.Find(ctx, customer, 2)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "grace", s.Entry(found).Value("Name"))

	again, err := s.Find(ctx, customer, 2)
	require.NoError(t, err)
	assert.Same(t, found, again)

	missing, err := s.Find(ctx, customer, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.Remove(found)
	require.NoError(t, err)
	deleted, err := s.Find(ctx, customer, 2)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	_, err = s.Find(ctx, customer, 1, 2)
	assert.EqualError(t, err, "entity type 'Customer' has no primary key of 2 value(s)")
}

func TestSession_RejectsConcurrentOperations(t *testing.T) {
	m := customerModel(t)
	store := memory.New(m)
	s, err := New(m, WithStore(store))
	require.NoError(t, err)
	newCustomer(t, s, "ada", 1)

	release, err := s.StateManager().BeginOperation()
	require.NoError(t, err)

	_, err = s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, tracking.ErrConcurrentOperation)
	expr, err := query.From(m.FindEntityType("Customer")).Build()
	require.NoError(t, err)
	_, err = s.Query(context.Background(), expr)
	assert.ErrorIs(t, err, tracking.ErrConcurrentOperation)

	release()
	n, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// flakyStore rejects the first failures batches as transient
type flakyStore struct {
	storage.Store
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) Save(ctx context.Context, commands []storage.Command) ([]storage.Result, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, storage.ErrTransient
	}
	return f.Store.Save(ctx, commands)
}

func TestSession_RetriesTransientFailures(t *testing.T) {
	m := customerModel(t)
	store := &flakyStore{Store: memory.New(m), failures: 2}
	core, logs := observer.New(zapcore.WarnLevel)

	s, err := New(m,
		WithStore(store),
		WithLogger(zap.New(core)),
		WithRetry(&RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}))
	require.NoError(t, err)
	c := newCustomer(t, s, "ada", 1)

	n, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, tracking.Unchanged, s.Entry(c).State())
	assert.Equal(t, 2, logs.FilterMessage("retrying save after transient failure").Len())
}

func TestSession_GivesUpAfterMaxRetries(t *testing.T) {
	m := customerModel(t)
	store := &flakyStore{Store: memory.New(m), failures: 5}
	s, err := New(m,
		WithStore(store),
		WithRetry(&RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond}))
	require.NoError(t, err)
	c := newCustomer(t, s, "ada", 1)

	_, err = s.SaveChanges(context.Background())
	require.ErrorIs(t, err, storage.ErrTransient)
	assert.Contains(t, err.Error(), "save failed after 2 attempts")
	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, tracking.Added, s.Entry(c).State())
}

func TestSession_DoesNotRetryPermanentFailures(t *testing.T) {
	m := customerModel(t)
	store := memory.New(m)
	s, err := New(m, WithStore(store), WithRetry(DefaultRetryConfig()))
	require.NoError(t, err)

	order := &tracking.ShadowEntity{TypeName: "Order"}
	_, err = s.Add(order)
	require.NoError(t, err)
	require.NoError(t, s.StateManager().SetPropertyValue(order, "CustomerId", 42))

	_, err = s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, storage.ErrForeignKeyViolation)
}

type blockingStore struct{}

func (blockingStore) Save(ctx context.Context, _ []storage.Command) ([]storage.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSession_SaveTimeout(t *testing.T) {
	m := customerModel(t)
	s, err := New(m, WithStore(blockingStore{}), WithSaveTimeout(10*time.Millisecond))
	require.NoError(t, err)
	c := newCustomer(t, s, "ada", 1)

	_, err = s.SaveChanges(context.Background())
	require.ErrorIs(t, err, ErrSaveTimeout)
	assert.Equal(t, "save timeout: save exceeded 10ms", err.Error())
	assert.Equal(t, tracking.Added, s.Entry(c).State())
}

func TestSession_RunsHooks(t *testing.T) {
	m := customerModel(t)
	executor := hooks.NewExecutor(nil)
	require.NoError(t, executor.Register(hooks.SavingChanges, &hooks.Hook{
		Name:       "require-name",
		EntityType: "Customer",
		Fn: func(ctx *hooks.Context) error {
			for _, e := range ctx.Entries() {
				if e.Value("Name") == "" {
					return errors.New("name is required")
				}
			}
			return nil
		},
	}))

	s, err := New(m, WithStore(memory.New(m)), WithHooks(executor))
	require.NoError(t, err)
	newCustomer(t, s, "", 1)

	_, err = s.SaveChanges(context.Background())
	assert.EqualError(t, err, "hook require-name failed: name is required")
}

func TestSession_LogsWithSessionID(t *testing.T) {
	m := customerModel(t)
	core, logs := observer.New(zapcore.InfoLevel)
	s, err := New(m, WithStore(memory.New(m)), WithLogger(zap.New(core)))
	require.NoError(t, err)
	newCustomer(t, s, "ada", 1)

	_, err = s.SaveChanges(context.Background())
	require.NoError(t, err)
	saved := logs.FilterMessage("changes saved").All()
	require.Len(t, saved, 1)
	assert.Equal(t, s.ID().String(), saved[0].ContextMap()["session"])
}

func TestContextHelpers(t *testing.T) {
	s, err := New(customerModel(t))
	require.NoError(t, err)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithContext(context.Background(), s)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Same(t, s, MustFromContext(ctx))
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}
