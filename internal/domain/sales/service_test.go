package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/core/types"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/testutil"
)

var fastRetry = sales.Config{
	IssueRetries:    3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func newServices(t *testing.T) (*sales.Service, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	allocator := sequence.NewService(store.Sequences(), store.Sales(), store, store.Audit(), nil)
	return sales.NewService(store.Sales(), allocator, store, fastRetry), store
}

func newSale(storeID id.ID) *sales.Sale {
	return &sales.Sale{
		StoreID:     storeID,
		InvoiceType: numerator.TypeConsumo,
		Lines: []sales.Line{
			{Description: "Cafe", Quantity: decimal.NewFromInt(2), UnitPrice: types.MustMoney("100.00"), Taxable: true},
			{Description: "Pan", Quantity: decimal.NewFromInt(1), UnitPrice: types.MustMoney("50.00")},
		},
	}
}

func TestCreate_AssignsNextNumber(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 1764)

	sale := newSale(storeID)
	require.NoError(t, svc.Create(context.Background(), sale))

	assert.Equal(t, "B02-00001765", sale.InvoiceNumber)
	assert.False(t, id.IsNil(sale.ID))
	assert.True(t, types.MustMoney("286.00").Equal(sale.Total), sale.Total.String())
	assert.Equal(t, int64(1765), store.Counter(key).CurrentNumber)

	got, err := svc.GetByID(context.Background(), storeID, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.InvoiceNumber, got.InvoiceNumber)
	assert.Len(t, got.Lines, 2)
	assert.Equal(t, sale.ID, got.Lines[0].SaleID)
}

func TestCreate_ValidationIssuesNothing(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeCreditoFiscal}
	store.PutCounter(key, 10)

	sale := newSale(storeID)
	sale.InvoiceType = numerator.TypeCreditoFiscal

	err := svc.Create(context.Background(), sale)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, sale.InvoiceNumber)
	assert.Equal(t, int64(10), store.Counter(key).CurrentNumber)
	assert.Equal(t, 0, store.SalesCount())
}

func TestCreate_InsertFailureDoesNotBurnNumber(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 99)
	store.FailNext(testutil.OpSaleCreate, apperror.NewPersistence(errors.New("connection reset")))

	sale := newSale(storeID)
	require.NoError(t, svc.Create(context.Background(), sale))

	// The retried attempt reuses 100 because the first increment rolled back.
	assert.Equal(t, "B02-00000100", sale.InvoiceNumber)
	assert.Equal(t, int64(100), store.Counter(key).CurrentNumber)
	assert.Equal(t, 1, store.SalesCount())
}

func TestCreate_RetriesExhausted(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 5)
	for range fastRetry.IssueRetries + 1 {
		store.FailNext(testutil.OpIncrement, errors.New("timeout"))
	}

	sale := newSale(storeID)
	err := svc.Create(context.Background(), sale)
	require.Error(t, err)
	assert.True(t, apperror.IsPersistence(err))
	assert.Empty(t, sale.InvoiceNumber)
	assert.Equal(t, int64(5), store.Counter(key).CurrentNumber)
	assert.Equal(t, 0, store.SalesCount())
}

func TestCreate_MissingCounterIsPermanent(t *testing.T) {
	calls := 0
	allocator := &numerator.MockAllocator{
		IssueNextFunc: func(_ context.Context, key numerator.Key) (string, error) {
			calls++
			return "", apperror.NewNotFound("invoice_sequence", key.String())
		},
	}
	store := testutil.NewStore()
	svc := sales.NewService(store.Sales(), allocator, store, fastRetry)

	err := svc.Create(context.Background(), newSale(id.New()))
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestCreate_RetriesConcurrentModification(t *testing.T) {
	calls := 0
	allocator := &numerator.MockAllocator{
		IssueNextFunc: func(_ context.Context, key numerator.Key) (string, error) {
			calls++
			if calls == 1 {
				return "", apperror.NewConcurrentModification("invoice_sequence", key.String())
			}
			return numerator.Format(key.InvoiceType, 7), nil
		},
	}
	store := testutil.NewStore()
	svc := sales.NewService(store.Sales(), allocator, store, fastRetry)

	sale := newSale(id.New())
	require.NoError(t, svc.Create(context.Background(), sale))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "B02-00000007", sale.InvoiceNumber)
}

func TestCreate_CounterBehindHistory(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 10)
	store.SeedSale(key, "B02-00000011")

	err := svc.Create(context.Background(), newSale(storeID))
	require.Error(t, err)
	assert.True(t, apperror.IsDuplicate(err))
	assert.Equal(t, int64(10), store.Counter(key).CurrentNumber)
	assert.Equal(t, 1, store.SalesCount())
}

func TestCreate_ConcurrentSalesGetDistinctNumbers(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 0)

	const terminals = 32
	var (
		mu      sync.Mutex
		numbers []string
	)
	g, ctx := errgroup.WithContext(context.Background())
	for range terminals {
		g.Go(func() error {
			sale := newSale(storeID)
			if err := svc.Create(ctx, sale); err != nil {
				return err
			}
			mu.Lock()
			numbers = append(numbers, sale.InvoiceNumber)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, lo.Uniq(numbers), terminals)
	assert.Contains(t, numbers, "B02-00000001")
	assert.Contains(t, numbers, "B02-00000032")
	assert.Equal(t, int64(terminals), store.Counter(key).CurrentNumber)
}

func TestCreate_Hooks(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	store.PutCounter(numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}, 0)

	var after string
	svc.Hooks().OnBeforeCreate(func(_ context.Context, s *sales.Sale) error {
		s.CreatedBy = "cashier-1"
		return nil
	})
	svc.Hooks().OnAfterCreate(func(_ context.Context, s *sales.Sale) error {
		after = s.InvoiceNumber
		return errors.New("ignored")
	})

	sale := newSale(storeID)
	require.NoError(t, svc.Create(context.Background(), sale))
	assert.Equal(t, "cashier-1", sale.CreatedBy)
	assert.Equal(t, sale.InvoiceNumber, after)
}

func TestList(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	store.PutCounter(numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}, 0)
	for range 3 {
		require.NoError(t, svc.Create(context.Background(), newSale(storeID)))
	}

	list, err := svc.List(context.Background(), sales.ListFilter{StoreID: storeID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.List(context.Background(), sales.ListFilter{StoreID: storeID, InvoiceType: "B01"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(context.Background(), sales.ListFilter{StoreID: id.New()})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_ClientKeyReturnsStoredSale(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 41)

	first := newSale(storeID)
	first.ClientKey = "pos-7-000123"
	require.NoError(t, svc.Create(context.Background(), first))
	assert.False(t, first.Replayed)
	assert.Equal(t, "B02-00000042", first.InvoiceNumber)

	again := newSale(storeID)
	again.ClientKey = "pos-7-000123"
	require.NoError(t, svc.Create(context.Background(), again))
	assert.True(t, again.Replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.InvoiceNumber, again.InvoiceNumber)
	assert.Len(t, again.Lines, 2)
	assert.Equal(t, int64(42), store.Counter(key).CurrentNumber)
	assert.Equal(t, 1, store.SalesCount())

	// Keys are scoped to their store.
	otherStore := id.New()
	store.PutCounter(numerator.Key{StoreID: otherStore, InvoiceType: numerator.TypeConsumo}, 0)
	elsewhere := newSale(otherStore)
	elsewhere.ClientKey = "pos-7-000123"
	require.NoError(t, svc.Create(context.Background(), elsewhere))
	assert.False(t, elsewhere.Replayed)
	assert.Equal(t, "B02-00000001", elsewhere.InvoiceNumber)
}

func TestCreate_ConcurrentResendsOfOneSale(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, 0)

	const resends = 8
	var (
		mu      sync.Mutex
		numbers []string
	)
	g, ctx := errgroup.WithContext(context.Background())
	for range resends {
		g.Go(func() error {
			sale := newSale(storeID)
			sale.ClientKey = "offline-queue-17"
			if err := svc.Create(ctx, sale); err != nil {
				return err
			}
			mu.Lock()
			numbers = append(numbers, sale.InvoiceNumber)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, []string{"B02-00000001"}, lo.Uniq(numbers))
	assert.Equal(t, 1, store.SalesCount())
	assert.Equal(t, int64(1), store.Counter(key).CurrentNumber)
}

func TestCreate_ClientKeyTooLong(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	store.PutCounter(numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}, 0)

	sale := newSale(storeID)
	sale.ClientKey = string(make([]byte, sales.MaxClientKeyLength+1))
	err := svc.Create(context.Background(), sale)
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, store.SalesCount())
}

func TestCreate_ExhaustedSequenceIsPermanent(t *testing.T) {
	svc, store := newServices(t)
	storeID := id.New()
	key := numerator.Key{StoreID: storeID, InvoiceType: numerator.TypeConsumo}
	store.PutCounter(key, numerator.MaxNumber)

	err := svc.Create(context.Background(), newSale(storeID))
	require.Error(t, err)
	assert.True(t, apperror.IsSequenceExhausted(err))
	assert.False(t, apperror.IsPersistence(err))
	assert.Equal(t, numerator.MaxNumber, store.Counter(key).CurrentNumber)
	assert.Zero(t, store.SalesCount())
}
