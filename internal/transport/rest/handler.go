// Package rest provides the HTTP surface of the fulfillment engine.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/domain"
	fulfillerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	service  service.Orchestrator
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler backed by the given orchestrator.
func NewHandler(service service.Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),

		logger: logger.With("component", "rest"),
	}
}

// TransitionRequestDto names the requested terminal state of an order.
type TransitionRequestDto struct {
	Target string `json:"target" validate:"required"`
}

// RegisterRoutes registers the HTTP routes of the fulfillment engine.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.FindOrders)
			r.Post("/", h.CreateOrder)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.FindOrderByID)
				r.Put("/items", h.EditOrderItems)
				r.Post("/transition", h.Transition)
			})
		})
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.FindSales)
			r.Get("/{id}", h.FindSaleByID)
		})
		r.Route("/returns", func(r chi.Router) {
			r.Get("/", h.FindReturns)
			r.Post("/", h.RegisterReturn)
		})
		r.Get("/balances/{id}", h.ClientBalance)
		r.Route("/stock", func(r chi.Router) {
			r.Get("/", h.StockLevels)
			r.Put("/", h.SetStockLevel)
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

// CreateOrder handles the creation of a new order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.OrderCreateDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to create order", "client_id", dto.ClientID)
	created, err := h.service.CreateOrder(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Order created successfully", slog.String("ID", created.ID.String()))
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// FindOrderByID retrieves an order by its ID.
func (h *Handler) FindOrderByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find order by ID", "ID", id)
	found, err := h.service.FindOrderByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindOrders retrieves every order.
func (h *Handler) FindOrders(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	list, err := h.service.FindOrders(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving order list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// EditOrderItems replaces the item list of a pending order.
func (h *Handler) EditOrderItems(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var dto service.OrderEditDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to edit order items", "ID", id)
	edited, err := h.service.EditOrderItems(r.Context(), id, dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Order items updated successfully", slog.String("ID", edited.ID.String()))
	web.RespondJSON(w, mLogger, http.StatusOK, edited)
}

// Transition moves an order to a terminal state.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var dto TransitionRequestDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}
	target, ok := domain.ParseOrderStatus(dto.Target)
	if !ok {
		mLogger.WarnContext(r.Context(), "Unknown target status", "target", dto.Target)
		web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Unknown target status: %s", dto.Target))
		return
	}

	mLogger.DebugContext(r.Context(), "Received transition request", "ID", id, "target", target)
	result, err := h.service.RequestTransition(r.Context(), id, target)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Order transitioned successfully",
		slog.String("ID", result.Order.ID.String()), slog.String("status", result.Order.Status))
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// FindSaleByID retrieves a sale by its ID.
func (h *Handler) FindSaleByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	found, err := h.service.FindSaleByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindSales retrieves sales, optionally filtered by client_id and status
// query parameters.
func (h *Handler) FindSales(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	var clientID *uuid.UUID
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid client_id: %s", raw))
			return
		}
		clientID = &parsed
	}
	var status *string
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = &raw
	}

	list, err := h.service.FindSales(r.Context(), clientID, status)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving sale list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch sales")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// RegisterReturn registers a partial return of a sale.
func (h *Handler) RegisterReturn(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.ReturnCreateDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to register return", "sale_id", dto.SaleID)
	created, err := h.service.RegisterReturn(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Return registered successfully", slog.String("ID", created.ID.String()))
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// FindReturns retrieves every registered return.
func (h *Handler) FindReturns(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	list, err := h.service.FindReturns(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving return list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch returns")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// ClientBalance retrieves the accumulated credit of one client.
func (h *Handler) ClientBalance(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	balance, err := h.service.ClientBalance(r.Context(), id)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving client balance", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch balance")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, balance)
}

// StockLevels retrieves stock cells, optionally filtered by product_id.
func (h *Handler) StockLevels(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	productID := uuid.Nil
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid product_id: %s", raw))
			return
		}
		productID = parsed
	}

	list, err := h.service.StockLevels(r.Context(), productID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving stock levels", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch stock levels")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// SetStockLevel seeds or corrects one stock cell.
func (h *Handler) SetStockLevel(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.StockSetDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}

	cell, err := h.service.SetStockLevel(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Stock level set", "cell",
		fmt.Sprintf("%s/%s/%s", cell.ProductID, cell.Size, cell.Color), "quantity", cell.Quantity)
	web.RespondJSON(w, mLogger, http.StatusOK, cell)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decodeAndValidate decodes the JSON body into dto and runs struct
// validation, writing the error response itself on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dto any) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondServiceError maps orchestrator errors onto HTTP statuses. A
// shortage answers with the full list of short cells so the caller can
// adjust the whole order at once.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error) {
	var shortageErr *fulfillerrors.ShortageError
	if errors.As(err, &shortageErr) {
		mLogger.WarnContext(r.Context(), "Insufficient stock", "shortages", len(shortageErr.Shortages))
		web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{
			"error":     "insufficient stock",
			"shortages": service.ToShortageDtos(shortageErr.Shortages),
		})
		return
	}

	switch {
	case errors.Is(err, fulfillerrors.ErrOrderNotFound),
		errors.Is(err, fulfillerrors.ErrSaleNotFound),
		errors.Is(err, fulfillerrors.ErrReturnNotFound):
		mLogger.WarnContext(r.Context(), "Record not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, err.Error())

	case errors.Is(err, fulfillerrors.ErrOrderLocked),
		errors.Is(err, fulfillerrors.ErrInvalidTransition),
		errors.Is(err, fulfillerrors.ErrDuplicateReturn),
		errors.Is(err, fulfillerrors.ErrAlreadyRestored),
		errors.Is(err, fulfillerrors.ErrSaleCancelled):
		mLogger.WarnContext(r.Context(), "Conflicting request", "error", err)
		web.RespondError(w, mLogger, http.StatusConflict, err.Error())

	case errors.Is(err, fulfillerrors.ErrEmptyOrder),
		errors.Is(err, fulfillerrors.ErrEmptyReturn),
		errors.Is(err, fulfillerrors.ErrReturnExceedsSale),
		errors.Is(err, fulfillerrors.ErrItemNotInSale),
		errors.Is(err, fulfillerrors.ErrVariantNotFound),
		errors.Is(err, fulfillerrors.ErrInsufficientStock):
		mLogger.WarnContext(r.Context(), "Rejected request", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())

	default:
		mLogger.ErrorContext(r.Context(), "Internal error", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Internal server error")
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
