package services

import (
	"context"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetWithLines(ctx context.Context, id int64) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetWithLinesForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListReconcilable(ctx context.Context, ids []int64) ([]*model.Transaction, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) UpdateHeaderStatus(ctx context.Context, id int64, s model.RentalStatus) error {
	args := m.Called(ctx, id, s)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateLineStatus(ctx context.Context, lineID int64, s model.RentalStatus) error {
	args := m.Called(ctx, lineID, s)
	return args.Error(0)
}

func (m *MockTransactionRepository) AddReturnedQuantity(ctx context.Context, lineID int64, qty int) error {
	args := m.Called(ctx, lineID, qty)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateEndDates(ctx context.Context, id int64, lineIDs []int64, end time.Time, header bool) error {
	args := m.Called(ctx, id, lineIDs, end, header)
	return args.Error(0)
}

func (m *MockTransactionRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockLifecycleRepository struct {
	mock.Mock
}

func (m *MockLifecycleRepository) Create(ctx context.Context, lc *model.RentalLifecycle) (*model.RentalLifecycle, error) {
	args := m.Called(ctx, lc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RentalLifecycle), args.Error(1)
}

func (m *MockLifecycleRepository) GetByTransaction(ctx context.Context, transactionID int64) (*model.RentalLifecycle, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RentalLifecycle), args.Error(1)
}

func (m *MockLifecycleRepository) UpdateStatus(ctx context.Context, transactionID int64, s model.RentalStatus, changedBy *string, at time.Time) error {
	args := m.Called(ctx, transactionID, s, changedBy, at)
	return args.Error(0)
}

func (m *MockLifecycleRepository) AddFees(ctx context.Context, lifecycleID int64, late, damage, other decimal.Decimal) error {
	args := m.Called(ctx, lifecycleID, late, damage, other)
	return args.Error(0)
}

func (m *MockLifecycleRepository) UpdateExpectedReturnDate(ctx context.Context, lifecycleID int64, date time.Time) error {
	args := m.Called(ctx, lifecycleID, date)
	return args.Error(0)
}

type MockStatusLogRepository struct {
	mock.Mock
}

func (m *MockStatusLogRepository) CreateBatch(ctx context.Context, logs []*model.StatusLog) error {
	args := m.Called(ctx, logs)
	return args.Error(0)
}

func (m *MockStatusLogRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*model.StatusLog, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.StatusLog), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev model.TransitionEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type MockStatusEngine struct {
	mock.Mock
}

func (m *MockStatusEngine) UpdateTransactionStatus(ctx context.Context, req model.UpdateStatusRequest) (*model.StatusUpdateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusUpdateResult), args.Error(1)
}

func (m *MockStatusEngine) OnReturnRecorded(ctx context.Context, transactionID int64, returnEventID string, changedBy *string, notes string) (*model.StatusUpdateResult, error) {
	args := m.Called(ctx, transactionID, returnEventID, changedBy, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusUpdateResult), args.Error(1)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type sequenceIDs struct {
	prefix string
	n      int
}

func (g *sequenceIDs) New() (string, error) {
	g.n++
	return g.prefix + string(rune('A'+g.n-1)), nil
}

var today = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func daysFromToday(n int) *time.Time {
	d := today.AddDate(0, 0, n)
	return &d
}

func ptr[T any](v T) *T {
	return &v
}

// rental builds an in-memory rental with one line per quantity, all due at end.
func rental(id int64, stored model.RentalStatus, end *time.Time, quantities ...int) *model.Transaction {
	txn := &model.Transaction{
		ID:                  id,
		TenantID:            1,
		Number:              "R-test",
		Kind:                model.TransactionKindRental,
		RentalEndDate:       end,
		CurrentRentalStatus: model.StatusPtr(stored),
	}
	for i, q := range quantities {
		txn.Lines = append(txn.Lines, &model.LineItem{
			ID:                  id*100 + int64(i) + 1,
			TransactionID:       id,
			LineNumber:          i + 1,
			Quantity:            q,
			RentalEndDate:       end,
			CurrentRentalStatus: model.StatusPtr(model.RentalStatusActive),
		})
	}
	return txn
}
