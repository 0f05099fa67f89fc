package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/middleware"
	"github.com/larexx40/gowagr-test/internal/query"
	"github.com/shopspring/decimal"
)

// TransferEngine is the write-side contract used by TransactionHandler.
type TransferEngine interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error)
	Transfer(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal) (*domain.Transaction, error)
}

// TransactionQuerier is the read-side contract used by TransactionHandler.
type TransactionQuerier interface {
	List(ctx context.Context, userID string, p query.ListParams) (*domain.TransactionPage, error)
	ListTransfers(ctx context.Context, userID string, p query.ListParams) (*domain.TransactionPage, error)
}

type TransactionHandler struct {
	engine  TransferEngine
	queries TransactionQuerier
}

func NewTransactionHandler(engine TransferEngine, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{engine: engine, queries: queries}
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type TransferRequest struct {
	RecipientUsername string          `json:"recipientUsername" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
}

func (h *TransactionHandler) Deposit(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	txn, err := h.engine.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondDomainError(c, err, "Failed to create deposit")
		return
	}
	respond(c, http.StatusCreated, "Deposit transaction created successfully", txn)
}

func (h *TransactionHandler) Transfer(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	txn, err := h.engine.Transfer(c.Request.Context(), userID, req.RecipientUsername, req.Amount)
	if err != nil {
		respondDomainError(c, err, "Failed to create transfer")
		return
	}
	respond(c, http.StatusCreated, "Money sent successfully", txn)
}

func (h *TransactionHandler) List(c *gin.Context) {
	h.list(c, h.queries.List)
}

// ListTransfers is the transfer-only history view.
func (h *TransactionHandler) ListTransfers(c *gin.Context) {
	h.list(c, h.queries.ListTransfers)
}

func (h *TransactionHandler) list(c *gin.Context, fetch func(context.Context, string, query.ListParams) (*domain.TransactionPage, error)) {
	userID, _ := middleware.GetUserID(c)

	params, err := parseListParams(c)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := fetch(c.Request.Context(), userID, params)
	if err != nil {
		respondDomainError(c, err, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     true,
		"message":    "Transactions retrieved successfully",
		"data":       page.Items,
		"totalCount": page.TotalCount,
		"page":       page.Page,
		"perPage":    page.PerPage,
	})
}

func parseListParams(c *gin.Context) (query.ListParams, error) {
	var params query.ListParams

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, errInvalidQueryParam("page")
		}
		params.Page = page
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, errInvalidQueryParam("limit")
		}
		params.Limit = limit
	}
	if v := c.Query("transactionType"); v != "" {
		t := domain.TransactionType(v)
		if t != domain.TypeDeposit && t != domain.TypeTransfer {
			return params, errInvalidQueryParam("transactionType")
		}
		params.Type = t
	}
	if v := c.Query("transactionStatus"); v != "" {
		s := domain.TransactionStatus(v)
		if s != domain.StatusSuccess && s != domain.StatusPending && s != domain.StatusFailed {
			return params, errInvalidQueryParam("transactionStatus")
		}
		params.Status = s
	}
	if v := c.Query("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return params, errInvalidQueryParam("startDate")
		}
		params.StartDate = &t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return params, errInvalidQueryParam("endDate")
		}
		params.EndDate = &t
	}
	return params, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func errInvalidQueryParam(name string) error {
	return fmt.Errorf("invalid query parameter: %s", name)
}
