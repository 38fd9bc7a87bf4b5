package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	companyA = "11111111-1111-1111-1111-111111111111"
	companyB = "22222222-2222-2222-2222-222222222222"
	productX = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
)

func seedProduct(quantity int) *models.Product {
	return &models.Product{
		ID:          productX,
		CompanyID:   companyA,
		SKU:         "SKU-1",
		Name:        "Producto X",
		Quantity:    quantity,
		MinQuantity: 2,
	}
}

func newTestLedger(t *testing.T, store Store, opts Options) (*Ledger, *countingRecorder) {
	rec := newCountingRecorder()
	return New(store, opts, rec, zaptest.NewLogger(t)), rec
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		before    int
		direction string
		amount    int
		want      int
		wantErr   error
	}{
		{"in adds", 10, models.MovementIn, 5, 15, nil},
		{"out subtracts", 10, models.MovementOut, 3, 7, nil},
		{"out to zero", 4, models.MovementOut, 4, 0, nil},
		{"out below zero", 4, models.MovementOut, 5, 4, ErrInsufficientQuantity},
		{"zero amount", 4, models.MovementIn, 0, 4, ErrInvalidAmount},
		{"negative amount", 4, models.MovementOut, -1, 4, ErrInvalidAmount},
		{"unknown direction", 4, "sideways", 1, 4, ErrInvalidDirection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.before, tt.direction, tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdjust_InThenOut(t *testing.T) {
	store := newMemStore(seedProduct(10))
	l, rec := newTestLedger(t, store, Options{})
	ctx := context.Background()

	res, err := l.Adjust(ctx, AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementIn, Amount: 5, Notes: "restock", UserID: "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.QuantityBefore)
	assert.Equal(t, 15, res.QuantityAfter)
	assert.True(t, res.AuditRecorded)
	require.NotNil(t, res.Movement)
	assert.Equal(t, models.SourceManual, res.Movement.Source)
	assert.Equal(t, "u-1", res.Movement.UserID)

	res, err = l.Adjust(ctx, AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementOut, Amount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, res.QuantityBefore)
	assert.Equal(t, 12, res.QuantityAfter)

	assert.Equal(t, 12, store.quantity(productX))
	require.Equal(t, 2, store.movementCount())
	assert.Equal(t, 10, store.movements[0].QuantityBefore)
	assert.Equal(t, 15, store.movements[0].QuantityAfter)
	assert.Equal(t, 15, store.movements[1].QuantityBefore)
	assert.Equal(t, 12, store.movements[1].QuantityAfter)
	assert.Equal(t, 2, rec.count(OutcomeApplied))
}

func TestAdjust_InsufficientQuantityWritesNothing(t *testing.T) {
	store := newMemStore(seedProduct(4))
	l, rec := newTestLedger(t, store, Options{})

	_, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementOut, Amount: 5,
	})

	assert.ErrorIs(t, err, ErrInsufficientQuantity)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 4, store.quantity(productX))
	assert.Zero(t, store.setCalls)
	assert.Zero(t, store.insertCalls)
	assert.Equal(t, 1, rec.count(OutcomeRejected))
}

func TestAdjust_RejectsBadInputBeforeTouchingStore(t *testing.T) {
	store := newMemStore(seedProduct(4))
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	_, err := l.Adjust(ctx, AdjustRequest{CompanyID: companyA, ProductID: productX, Direction: models.MovementIn, Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Adjust(ctx, AdjustRequest{CompanyID: companyA, ProductID: productX, Direction: "transfer", Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	assert.Zero(t, store.setCalls)
	assert.Zero(t, store.insertCalls)
}

func TestAdjust_ProductScopedToCompany(t *testing.T) {
	store := newMemStore(seedProduct(4))
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	_, err := l.Adjust(ctx, AdjustRequest{CompanyID: companyB, ProductID: productX, Direction: models.MovementIn, Amount: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = l.Adjust(ctx, AdjustRequest{CompanyID: companyA, ProductID: "missing", Direction: models.MovementIn, Amount: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	assert.Equal(t, 4, store.quantity(productX))
}

func TestAdjust_BestEffortKeepsQuantityWhenMovementFails(t *testing.T) {
	store := newMemStore(seedProduct(10))
	store.failInsert = errors.New("connection reset")
	l, rec := newTestLedger(t, store, Options{AuditMode: AuditBestEffort})

	res, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementIn, Amount: 5,
	})

	require.NoError(t, err)
	assert.False(t, res.AuditRecorded)
	assert.Nil(t, res.Movement)
	assert.Equal(t, 15, res.QuantityAfter)
	assert.Equal(t, 15, store.quantity(productX))
	assert.Zero(t, store.movementCount())
	assert.Equal(t, 1, rec.count(OutcomeAuditDivergence))
}

func TestAdjust_StrictRollsBackWhenMovementFails(t *testing.T) {
	store := newMemStore(seedProduct(10))
	store.failInsert = errors.New("connection reset")
	l, rec := newTestLedger(t, store, Options{AuditMode: AuditStrict})

	res, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementIn, Amount: 5,
	})

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAuditWriteFailed)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 10, store.quantity(productX))
	assert.Zero(t, store.movementCount())
	assert.Equal(t, 1, rec.count(OutcomeAuditFailed))
}

func TestAdjust_QuantityWriteFailureLeavesNoMovement(t *testing.T) {
	store := newMemStore(seedProduct(10))
	store.failSet = errors.New("disk full")
	l, rec := newTestLedger(t, store, Options{})

	_, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementIn, Amount: 5,
	})

	assert.Error(t, err)
	assert.Zero(t, store.insertCalls)
	assert.Equal(t, 1, rec.count(OutcomeFailed))
}

func TestAdjust_FinalQuantityIsInitialPlusNetMovements(t *testing.T) {
	store := newMemStore(seedProduct(7))
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	steps := []struct {
		direction string
		amount    int
	}{
		{models.MovementIn, 3},
		{models.MovementOut, 9},
		{models.MovementOut, 5}, // rechazado: 1 - 5 < 0
		{models.MovementIn, 12},
		{models.MovementOut, 13},
		{models.MovementIn, 1},
	}

	expected := 7
	for _, s := range steps {
		_, err := l.Adjust(ctx, AdjustRequest{CompanyID: companyA, ProductID: productX, Direction: s.direction, Amount: s.amount})
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientQuantity)
			continue
		}
		after, _ := Apply(expected, s.direction, s.amount)
		expected = after
	}

	assert.Equal(t, 1, expected)
	assert.Equal(t, expected, store.quantity(productX))
	assert.Equal(t, 5, store.movementCount())

	report, err := l.Verify(ctx, companyA, productX)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, expected, report.ReplayedQuantity)
}

func runConcurrentIncrements(t *testing.T, l *Ledger) {
	t.Helper()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Adjust(context.Background(), AdjustRequest{
				CompanyID: companyA, ProductID: productX,
				Direction: models.MovementIn, Amount: 5,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestAdjust_LastWriterWinsLosesConcurrentUpdate(t *testing.T) {
	inner := newMemStore(seedProduct(10))
	store := newBarrierStore(inner, 2)
	l, _ := newTestLedger(t, store, Options{Concurrency: LastWriterWins})

	runConcurrentIncrements(t, l)

	assert.Equal(t, 15, inner.quantity(productX))
	require.Equal(t, 2, inner.movementCount())
	for _, m := range inner.movements {
		assert.Equal(t, 10, m.QuantityBefore)
		assert.Equal(t, 15, m.QuantityAfter)
	}

	report, err := l.Verify(context.Background(), companyA, productX)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, 20, report.ReplayedQuantity)
	assert.Equal(t, 15, report.StoredQuantity)
	require.Len(t, report.Breaks, 1)
	assert.Equal(t, BreakBeforeMismatch, report.Breaks[0].Reason)
}

func TestAdjust_OptimisticRetriesConcurrentUpdate(t *testing.T) {
	inner := newMemStore(seedProduct(10))
	store := newBarrierStore(inner, 2)
	l, rec := newTestLedger(t, store, Options{Concurrency: Optimistic, MaxRetries: 3})

	runConcurrentIncrements(t, l)

	assert.Equal(t, 20, inner.quantity(productX))
	assert.Equal(t, 2, inner.movementCount())
	assert.Equal(t, 1, rec.count(OutcomeVersionConflict))

	var pairs [][2]int
	for _, m := range inner.movements {
		pairs = append(pairs, [2]int{m.QuantityBefore, m.QuantityAfter})
	}
	assert.ElementsMatch(t, [][2]int{{10, 15}, {15, 20}}, pairs)
}

func TestAdjust_OptimisticGivesUpAfterMaxRetries(t *testing.T) {
	store := newMemStore(seedProduct(10))
	store.casAlwaysFails = true
	l, rec := newTestLedger(t, store, Options{Concurrency: Optimistic, MaxRetries: 2})

	_, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementIn, Amount: 1,
	})

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 3, store.casCalls)
	assert.Zero(t, store.insertCalls)
	assert.Equal(t, 3, rec.count(OutcomeVersionConflict))
	assert.Equal(t, 10, store.quantity(productX))
}

func TestAdjust_StrictOptimisticCommitsBothWrites(t *testing.T) {
	store := newMemStore(seedProduct(10))
	l, _ := newTestLedger(t, store, Options{AuditMode: AuditStrict, Concurrency: Optimistic, MaxRetries: 1})

	res, err := l.Adjust(context.Background(), AdjustRequest{
		CompanyID: companyA, ProductID: productX,
		Direction: models.MovementOut, Amount: 10, Source: models.SourceSale, Reference: "sale-1",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.QuantityAfter)
	assert.Equal(t, 2, res.Product.Version)
	assert.Equal(t, 1, res.Attempts)
	require.Equal(t, 1, store.movementCount())
	assert.Equal(t, "sale-1", store.movements[0].Reference)
	assert.Equal(t, models.SourceSale, store.movements[0].Source)
}

var allModes = []struct {
	name string
	opts Options
}{
	{"best-effort/last-writer-wins", Options{AuditMode: AuditBestEffort, Concurrency: LastWriterWins}},
	{"best-effort/optimistic", Options{AuditMode: AuditBestEffort, Concurrency: Optimistic, MaxRetries: 3}},
	{"strict/last-writer-wins", Options{AuditMode: AuditStrict, Concurrency: LastWriterWins}},
	{"strict/optimistic", Options{AuditMode: AuditStrict, Concurrency: Optimistic, MaxRetries: 3}},
}

type scenarioStep struct {
	direction string
	amount    int
	wantErr   error
	// cantidad y movimientos esperados después del paso
	wantQuantity  int
	wantMovements int
}

func TestAdjust_Scenarios(t *testing.T) {
	scenarios := []struct {
		name     string
		initial  int
		minimum  int
		steps    []scenarioStep
		wantLast *models.StockMovement
	}{
		{
			name:    "out 3 then out 10 from 10",
			initial: 10,
			minimum: 5,
			steps: []scenarioStep{
				{models.MovementOut, 3, nil, 7, 1},
				{models.MovementOut, 10, ErrInsufficientQuantity, 7, 1},
			},
			wantLast: &models.StockMovement{MovementType: models.MovementOut, Quantity: 3, QuantityBefore: 10, QuantityAfter: 7},
		},
		{
			name:    "in 5 from empty",
			initial: 0,
			steps: []scenarioStep{
				{models.MovementIn, 5, nil, 5, 1},
			},
			wantLast: &models.StockMovement{MovementType: models.MovementIn, Quantity: 5, QuantityBefore: 0, QuantityAfter: 5},
		},
	}

	for _, mode := range allModes {
		for _, sc := range scenarios {
			t.Run(mode.name+"/"+sc.name, func(t *testing.T) {
				seed := seedProduct(sc.initial)
				seed.MinQuantity = sc.minimum
				store := newMemStore(seed)
				l, _ := newTestLedger(t, store, mode.opts)

				for i, step := range sc.steps {
					_, err := l.Adjust(context.Background(), AdjustRequest{
						CompanyID: companyA, ProductID: productX,
						Direction: step.direction, Amount: step.amount,
					})
					if step.wantErr != nil {
						require.ErrorIs(t, err, step.wantErr, "step %d", i)
						assert.EqualError(t, err, "insufficient quantity")
					} else {
						require.NoError(t, err, "step %d", i)
					}
					assert.Equal(t, step.wantQuantity, store.quantity(productX), "step %d", i)
					assert.Equal(t, step.wantMovements, store.movementCount(), "step %d", i)
				}

				last := store.movements[len(store.movements)-1]
				assert.Equal(t, sc.wantLast.MovementType, last.MovementType)
				assert.Equal(t, sc.wantLast.Quantity, last.Quantity)
				assert.Equal(t, sc.wantLast.QuantityBefore, last.QuantityBefore)
				assert.Equal(t, sc.wantLast.QuantityAfter, last.QuantityAfter)
				assert.Equal(t, productX, last.ProductID)
				assert.Equal(t, companyA, last.CompanyID)
			})
		}
	}
}
