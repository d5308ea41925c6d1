package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReturnEventRepository struct {
	mock.Mock
}

func (m *MockReturnEventRepository) Create(ctx context.Context, ev *model.ReturnEvent) (*model.ReturnEvent, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReturnEvent), args.Error(1)
}

func (m *MockReturnEventRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*model.ReturnEvent, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ReturnEvent), args.Error(1)
}

type returnFixture struct {
	txns       *MockTransactionRepository
	lifecycles *MockLifecycleRepository
	events     *MockReturnEventRepository
	engine     *MockStatusEngine
	service    *ReturnService
}

func newReturnFixture() *returnFixture {
	f := &returnFixture{
		txns:       new(MockTransactionRepository),
		lifecycles: new(MockLifecycleRepository),
		events:     new(MockReturnEventRepository),
		engine:     new(MockStatusEngine),
	}
	f.service = NewReturnService(f.txns, f.lifecycles, f.events, f.engine).
		WithClock(fixedClock{now: today}).
		WithIDGen(&sequenceIDs{prefix: "EV-"})
	f.txns.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	return f
}

func TestReturnService_RecordReturn_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty items never reach storage", func(t *testing.T) {
		f := newReturnFixture()
		_, err := f.service.RecordReturn(ctx, model.RecordReturnRequest{TransactionID: 1})
		assert.ErrorIs(t, err, model.ErrValidation)
		f.txns.AssertNotCalled(t, "WithinTransaction", mock.Anything, mock.Anything)
	})

	t.Run("line of another transaction", func(t *testing.T) {
		f := newReturnFixture()
		f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(rental(1, model.RentalStatusActive, daysFromToday(2), 2), nil)
		f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(&model.RentalLifecycle{ID: 11, TransactionID: 1}, nil)

		_, err := f.service.RecordReturn(ctx, model.RecordReturnRequest{
			TransactionID: 1,
			Items:         []model.ReturnedItem{{LineID: 999, Quantity: 1}},
		})
		assert.ErrorIs(t, err, model.ErrValidation)
		f.txns.AssertNotCalled(t, "AddReturnedQuantity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("more than outstanding", func(t *testing.T) {
		f := newReturnFixture()
		txn := rental(1, model.RentalStatusActive, daysFromToday(2), 2)
		txn.Lines[0].ReturnedQuantity = 1
		f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(txn, nil)
		f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(&model.RentalLifecycle{ID: 11, TransactionID: 1}, nil)

		_, err := f.service.RecordReturn(ctx, model.RecordReturnRequest{
			TransactionID: 1,
			Items:         []model.ReturnedItem{{LineID: txn.Lines[0].ID, Quantity: 2}},
		})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("sale", func(t *testing.T) {
		f := newReturnFixture()
		f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(2)).Return(&model.Transaction{ID: 2, Kind: model.TransactionKindSale}, nil)

		_, err := f.service.RecordReturn(ctx, model.RecordReturnRequest{
			TransactionID: 2,
			Items:         []model.ReturnedItem{{LineID: 1, Quantity: 1}},
		})
		assert.ErrorIs(t, err, model.ErrNotRental)
	})
}

func TestReturnService_RecordReturn_CreatesMissingLifecycle(t *testing.T) {
	f := newReturnFixture()
	ctx := context.Background()
	txn := rental(1, model.RentalStatusActive, daysFromToday(2), 2)
	lineID := txn.Lines[0].ID

	f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(txn, nil)
	f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(nil, repository.ErrLifecycleNotFound)
	f.lifecycles.On("Create", mock.Anything, mock.MatchedBy(func(lc *model.RentalLifecycle) bool {
		return lc.TransactionID == 1 && lc.CurrentStatus == model.RentalStatusActive
	})).Return(&model.RentalLifecycle{ID: 42, TransactionID: 1}, nil)
	f.txns.On("AddReturnedQuantity", mock.Anything, lineID, 2).Return(nil)
	f.events.On("Create", mock.Anything, mock.MatchedBy(func(ev *model.ReturnEvent) bool {
		return ev.LifecycleID == 42 &&
			ev.Reference == "EV-A" &&
			ev.EventType == model.ReturnEventFull &&
			ev.TotalQuantityReturned == 2 &&
			ev.DaysLate == 0 &&
			ev.EventDate.Equal(today)
	})).Return(&model.ReturnEvent{ID: 7, Reference: "EV-A", EventType: model.ReturnEventFull, TotalQuantityReturned: 2}, nil)
	f.engine.On("OnReturnRecorded", mock.Anything, int64(1), "EV-A", (*string)(nil), "").
		Return(&model.StatusUpdateResult{TransactionID: 1, NewStatus: model.RentalStatusCompleted}, nil)

	res, err := f.service.RecordReturn(ctx, model.RecordReturnRequest{
		TransactionID: 1,
		Items:         []model.ReturnedItem{{LineID: lineID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RentalStatusCompleted, res.Status.NewStatus)

	// no fees, no fee update
	f.lifecycles.AssertNotCalled(t, "AddFees", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.txns.AssertExpectations(t)
	f.lifecycles.AssertExpectations(t)
	f.events.AssertExpectations(t)
	f.engine.AssertExpectations(t)
}

func TestReturnService_RecordReturn_StatusHookFailure(t *testing.T) {
	f := newReturnFixture()
	txn := rental(1, model.RentalStatusActive, daysFromToday(2), 3)

	f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(txn, nil)
	f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(&model.RentalLifecycle{ID: 5}, nil)
	f.txns.On("AddReturnedQuantity", mock.Anything, txn.Lines[0].ID, 1).Return(nil)
	f.events.On("Create", mock.Anything, mock.Anything).Return(&model.ReturnEvent{ID: 1, Reference: "EV-A", EventType: model.ReturnEventPartial}, nil)
	f.lifecycles.On("AddFees", mock.Anything, int64(5), mock.Anything, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.NewFromInt(30))
	}), mock.Anything).Return(nil)
	f.engine.On("OnReturnRecorded", mock.Anything, int64(1), "EV-A", mock.Anything, mock.Anything).
		Return(nil, errors.New("deadlock detected"))

	res, err := f.service.RecordReturn(context.Background(), model.RecordReturnRequest{
		TransactionID: 1,
		Items:         []model.ReturnedItem{{LineID: txn.Lines[0].ID, Quantity: 1, Condition: "scratched"}},
		DamageFee:     decimal.NewFromInt(30),
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "EV-A", res.Event.Reference)
	assert.Nil(t, res.Status)
	f.lifecycles.AssertExpectations(t)
}

func TestReturnService_RecordReturn_StorageFailure(t *testing.T) {
	f := newReturnFixture()
	txn := rental(1, model.RentalStatusActive, daysFromToday(2), 1)

	f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(txn, nil)
	f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(&model.RentalLifecycle{ID: 5}, nil)
	f.txns.On("AddReturnedQuantity", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.events.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("unique violation"))

	_, err := f.service.RecordReturn(context.Background(), model.RecordReturnRequest{
		TransactionID: 1,
		Items:         []model.ReturnedItem{{LineID: txn.Lines[0].ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, model.ErrPersistence)
	f.engine.AssertNotCalled(t, "OnReturnRecorded", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReturnService_ExtendRental_OnlyNamedLines(t *testing.T) {
	f := newReturnFixture()
	txn := rental(1, model.RentalStatusLate, daysFromToday(-1), 1, 1)
	second := txn.Lines[1].ID
	newEnd := *daysFromToday(3)

	f.txns.On("GetWithLinesForUpdate", mock.Anything, int64(1)).Return(txn, nil)
	f.lifecycles.On("GetByTransaction", mock.Anything, int64(1)).Return(&model.RentalLifecycle{ID: 5}, nil)
	f.txns.On("UpdateEndDates", mock.Anything, int64(1), []int64{second}, mock.Anything, true).Return(nil)
	f.lifecycles.On("UpdateExpectedReturnDate", mock.Anything, int64(5), mock.Anything).Return(nil)
	f.events.On("Create", mock.Anything, mock.MatchedBy(func(ev *model.ReturnEvent) bool {
		return ev.EventType == model.ReturnEventExtension &&
			len(ev.Items) == 1 && ev.Items[0].LineID == second &&
			ev.NewReturnDate != nil && ev.NewReturnDate.Day() == newEnd.Day()
	})).Return(&model.ReturnEvent{ID: 3, Reference: "EV-A", EventType: model.ReturnEventExtension}, nil)
	f.engine.On("UpdateTransactionStatus", mock.Anything, mock.MatchedBy(func(r model.UpdateStatusRequest) bool {
		return r.TransactionID == 1 && r.Reason == model.ReasonExtension && r.Trigger == "EV-A"
	})).Return(&model.StatusUpdateResult{TransactionID: 1, NewStatus: model.RentalStatusLate}, nil)

	res, err := f.service.ExtendRental(context.Background(), model.ExtendRentalRequest{
		TransactionID: 1,
		NewEndDate:    newEnd,
		LineIDs:       []int64{second},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RentalStatusLate, res.Status.NewStatus)
	f.lifecycles.AssertNotCalled(t, "AddFees", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.txns.AssertExpectations(t)
	f.events.AssertExpectations(t)
}
