package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/xtrntr/poolshare/internal/auth"
	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

// FeedTokenHeader carries the price feed credential
const FeedTokenHeader = "X-Feed-Token"

// UserIDFromContext returns the authenticated user set by JWTAuthMiddleware
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      exchange.Matcher
	AuthService *auth.AuthService
	Hub         *Hub
	Logger      *zap.Logger
	TradesLimit int

	// FeedToken is the shared secret of the reference price feed.
	// Stop triggering is refused while it is empty.
	FeedToken string

	validate *validator.Validate
}

// NewHandler creates a new handler. hub and logger may be nil.
func NewHandler(engine exchange.Matcher, authService *auth.AuthService, hub *Hub, logger *zap.Logger, tradesLimit int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:      engine,
		AuthService: authService,
		Hub:         hub,
		Logger:      logger,
		TradesLimit: tradesLimit,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

type credentials struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=72"`
}

type placeOrderRequest struct {
	PoolID    string              `json:"pool_id" validate:"required,max=64"`
	Side      models.Side         `json:"side" validate:"required,oneof=BUY SELL"`
	Type      models.OrderType    `json:"order_type" validate:"required,oneof=MARKET LIMIT STOP"`
	Amount    decimal.Decimal     `json:"amount"`
	Price     decimal.NullDecimal `json:"price"`
	StopPrice decimal.NullDecimal `json:"stop_price"`
}

type triggerRequest struct {
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps engine error kinds onto HTTP status codes
func statusFor(err error) int {
	switch exchange.KindOf(err) {
	case exchange.ErrValidation:
		return http.StatusBadRequest
	case exchange.ErrNotFound:
		return http.StatusNotFound
	case exchange.ErrAuthorization:
		return http.StatusForbidden
	case exchange.ErrState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			respondError(w, http.StatusBadRequest, "Invalid field: "+verrs[0].Field())
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

func (h *Handler) broadcast(poolID string) {
	if h.Hub != nil {
		h.Hub.Broadcast(poolID)
	}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "Invalid username or password")
		return
	case errors.Is(err, models.ErrUserExists):
		respondError(w, http.StatusConflict, "Username already taken")
		return
	case err != nil:
		h.Logger.Error("failed to register user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.Logger.Error("failed to log in", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FeedAuthMiddleware admits only the reference price feed. Trader tokens do
// not grant access.
func (h *Handler) FeedAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(FeedTokenHeader)
		if h.FeedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.FeedToken)) != 1 {
			respondError(w, http.StatusForbidden, "Price feed access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PlaceOrder admits an order for the authenticated user and runs matching
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, trades, err := h.Engine.AddOrder(r.Context(), models.Order{
		PoolID:    req.PoolID,
		UserID:    userID,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    req.Amount,
		Price:     req.Price,
		StopPrice: req.StopPrice,
	})
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	h.broadcast(order.PoolID)

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"order":  order,
		"trades": trades,
	})
}

// GetUserOrders lists every order of the authenticated user
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, h.Engine.GetUserOrders(userID))
}

// CancelOrder cancels a live order owned by the authenticated user
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	order, err := h.Engine.CancelOrder(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	h.broadcast(order.PoolID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Order cancelled",
		"order":   order,
	})
}

// TriggerStops feeds a reference price to a pool's parked stop orders
func (h *Handler) TriggerStops(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !h.decode(w, r, &req) {
		return
	}

	poolID := chi.URLParam(r, "pool")
	trades, err := h.Engine.TriggerStops(r.Context(), poolID, req.ReferencePrice)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	h.broadcast(poolID)

	respondJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// GetOrderBook returns a pool's live book and parked stops
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "pool")
	book, ok := h.Engine.GetOrderBook(poolID)
	if !ok {
		respondError(w, http.StatusNotFound, "Pool not found")
		return
	}
	respondJSON(w, http.StatusOK, book)
}

// GetRecentTrades returns a pool's trades, newest first
func (h *Handler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := h.TradesLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, h.Engine.GetRecentTrades(chi.URLParam(r, "pool"), limit))
}

// GetPriceStats returns a pool's 24h statistics
func (h *Handler) GetPriceStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.GetPriceStats(chi.URLParam(r, "pool")))
}
