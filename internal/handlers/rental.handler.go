package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/rental-gateway/internal/model"
	xhttp "github.com/nimasrn/rental-gateway/pkg/http"
	"github.com/nimasrn/rental-gateway/pkg/logger"
)

type RentalCreator interface {
	Create(ctx context.Context, req model.CreateRentalRequest) (*model.Transaction, error)
}

type ReturnRecorder interface {
	RecordReturn(ctx context.Context, req model.RecordReturnRequest) (*model.ReturnResult, error)
	ExtendRental(ctx context.Context, req model.ExtendRentalRequest) (*model.ReturnResult, error)
}

type StatusEngine interface {
	EvaluateTransaction(ctx context.Context, transactionID int64, asOf time.Time) (*model.Evaluation, error)
	UpdateTransactionStatus(ctx context.Context, req model.UpdateStatusRequest) (*model.StatusUpdateResult, error)
	History(ctx context.Context, transactionID int64) ([]*model.StatusLog, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req model.ReconcileRequest) (*model.BatchReport, error)
}

type RentalHandler struct {
	rentals   RentalCreator
	returns   ReturnRecorder
	status    StatusEngine
	reconcile Reconciler
}

func NewRentalHandler(rentals RentalCreator, returns ReturnRecorder, status StatusEngine, reconcile Reconciler) *RentalHandler {
	return &RentalHandler{
		rentals:   rentals,
		returns:   returns,
		status:    status,
		reconcile: reconcile,
	}
}

func RegisterRentalRoutes(e *router.Group, h *RentalHandler) {
	e.POST("/rentals", h.CreateRental)
	e.POST("/rentals/reconcile", h.Reconcile)
	e.GET("/rentals/{id}/status", h.GetStatus)
	e.POST("/rentals/{id}/status/refresh", h.RefreshStatus)
	e.GET("/rentals/{id}/status/history", h.GetHistory)
	e.POST("/rentals/{id}/returns", h.RecordReturn)
	e.POST("/rentals/{id}/extensions", h.ExtendRental)
}

type refreshRequest struct {
	ChangedBy string `json:"changed_by"`
	Notes     string `json:"notes"`
	AsOf      string `json:"as_of"`
}

type reconcileRequest struct {
	TransactionIDs []int64 `json:"transaction_ids"`
	AsOf           string  `json:"as_of"`
}

type historyResponse struct {
	Items []*model.StatusLog `json:"items"`
	Total int                `json:"total"`
}

func (h *RentalHandler) CreateRental(ctx *xhttp.RequestCtx) {
	var req model.CreateRentalRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	txn, err := h.rentals.Create(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, txn)
}

func (h *RentalHandler) GetStatus(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	asOf, err := optionalDate(xhttp.Query(ctx, "as_of"))
	if err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	ev, err := h.status.EvaluateTransaction(ctx, id, asOf)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, ev)
}

func (h *RentalHandler) RefreshStatus(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var body refreshRequest
	if len(ctx.PostBody()) > 0 {
		if err := xhttp.ReadJSON(ctx, &body); err != nil {
			xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	asOf, err := optionalDate(body.AsOf)
	if err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	req := model.UpdateStatusRequest{
		TransactionID: id,
		AsOf:          asOf,
		Reason:        model.ReasonManualUpdate,
		Trigger:       "api",
		Notes:         body.Notes,
	}
	if body.ChangedBy != "" {
		req.ChangedBy = &body.ChangedBy
	}
	res, err := h.status.UpdateTransactionStatus(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, res)
}

func (h *RentalHandler) GetHistory(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	logs, err := h.status.History(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, historyResponse{Items: logs, Total: len(logs)})
}

func (h *RentalHandler) RecordReturn(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req model.RecordReturnRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	req.TransactionID = id
	res, err := h.returns.RecordReturn(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, res)
}

func (h *RentalHandler) ExtendRental(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req model.ExtendRentalRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	req.TransactionID = id
	res, err := h.returns.ExtendRental(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, res)
}

func (h *RentalHandler) Reconcile(ctx *xhttp.RequestCtx) {
	var body reconcileRequest
	if len(ctx.PostBody()) > 0 {
		if err := xhttp.ReadJSON(ctx, &body); err != nil {
			xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	asOf, err := optionalDate(body.AsOf)
	if err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	report, err := h.reconcile.Reconcile(ctx, model.ReconcileRequest{TransactionIDs: body.TransactionIDs, AsOf: asOf})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, report)
}

func pathID(ctx *xhttp.RequestCtx) (int64, bool) {
	id, err := strconv.ParseInt(xhttp.Param(ctx, "id"), 10, 64)
	if err != nil || id <= 0 {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid rental id")
		return 0, false
	}
	return id, true
}

// optionalDate accepts YYYY-MM-DD or RFC3339; empty means "now".
func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		xhttp.WriteError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrValidation):
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrConflict):
		xhttp.WriteError(ctx, xhttp.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		xhttp.WriteError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}
