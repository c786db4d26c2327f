package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/preauth"
	"github.com/drivana/settlement/pkg/risk"
	"github.com/drivana/settlement/pkg/settlement"
	"github.com/drivana/settlement/pkg/withdrawal"
)

// MetricsWriter stores marketplace statistics pushed in by the booking
// system; the risk scorer reads them back through risk.MetricsSource.
type MetricsWriter interface {
	UpsertMetrics(ctx context.Context, userID string, metrics risk.Metrics) error
}

// Dependencies carries the wired domain services.
type Dependencies struct {
	Wallet      *ledger.Service
	Risk        *risk.Service
	Withdrawals *withdrawal.Service
	Cards       *preauth.Service
	Settlement  *settlement.Orchestrator
	Metrics     MetricsWriter
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Server is the HTTP surface over the settlement services.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	handler *httpHandler
	router  *gin.Engine
}

// NewServer validates the configuration and builds the router.
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Wallet == nil || deps.Risk == nil || deps.Withdrawals == nil ||
		deps.Cards == nil || deps.Settlement == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("all service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	handler := &httpHandler{
		logger:      logger,
		now:         clock,
		wallet:      deps.Wallet,
		risk:        deps.Risk,
		withdrawals: deps.Withdrawals,
		cards:       deps.Cards,
		settlement:  deps.Settlement,
		metrics:     deps.Metrics,
		timeout:     cfg.RequestTimeout,
	}
	verifier := &tokenVerifier{signingKey: []byte(cfg.JWTSigningKey), issuer: cfg.JWTIssuer}
	server := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		router:  setupRouter(cfg, handler, verifier),
	}
	return server, nil
}

// Handler exposes the router for tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until the context is cancelled.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("settlement api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, verifier *tokenVerifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(verifier.middleware())

	api.GET("/wallet", handler.handleWallet)

	api.GET("/risk/profile", handler.handleRiskProfile)
	api.POST("/risk/deposit-quote", handler.handleDepositQuote)

	api.POST("/bank-accounts", handler.handleAddBankAccount)
	api.GET("/bank-accounts", handler.handleListBankAccounts)
	api.POST("/bank-accounts/:accountID/default", handler.handleSetDefaultAccount)
	api.DELETE("/bank-accounts/:accountID", handler.handleRemoveBankAccount)

	api.POST("/withdrawals", handler.handleRequestWithdrawal)
	api.GET("/withdrawals", handler.handleListOwnWithdrawals)
	api.POST("/withdrawals/:requestID/cancel", handler.handleCancelWithdrawal)

	api.POST("/cards", handler.handleSaveCard)
	api.GET("/cards", handler.handleListCards)

	admin := api.Group("/admin")
	admin.Use(requireAdmin())

	admin.GET("/withdrawals", handler.handleAdminListWithdrawals)
	admin.POST("/withdrawals/:requestID/approve", handler.handleApproveWithdrawal)
	admin.POST("/withdrawals/:requestID/reject", handler.handleRejectWithdrawal)

	admin.GET("/risk/stats", handler.handleRiskStats)
	admin.POST("/risk/recalculate", handler.handleRecalculateAll)
	admin.PUT("/risk/metrics/:userID", handler.handleUpsertMetrics)

	admin.POST("/bookings/:bookingID/guarantee", handler.handleBookingGuarantee)
	admin.POST("/bookings/:bookingID/cancel", handler.handleBookingCancelled)
	admin.POST("/holds/renew", handler.handleRenewHold)
	admin.GET("/holds/:paymentID", handler.handleReconcileHold)
	admin.POST("/franchise-charges", handler.handleChargeFranchise)

	return router
}

type httpHandler struct {
	logger      *zap.Logger
	now         func() time.Time
	wallet      *ledger.Service
	risk        *risk.Service
	withdrawals *withdrawal.Service
	cards       *preauth.Service
	settlement  *settlement.Orchestrator
	metrics     MetricsWriter
	timeout     time.Duration
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(status, errorResponse(code, "internal error"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

// --- wallet ---

type walletPayload struct {
	Balance balancePayload `json:"balance"`
	Entries []entryPayload `json:"entries"`
}

type balancePayload struct {
	TotalCents     int64 `json:"total_cents"`
	AvailableCents int64 `json:"available_cents"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	Kind           string          `json:"kind"`
	AmountCents    int64           `json:"amount_cents"`
	Ref            string          `json:"ref"`
	BookingID      string          `json:"booking_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, err := ledger.NewUserID(getClaims(ctx).Subject)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.wallet.Balance(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	entries, err := handler.wallet.Entries(requestCtx, userID, handler.now().UTC().Add(time.Second).Unix(), walletHistoryLimit)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}

	payload := walletPayload{
		Balance: balancePayload{
			TotalCents:     balance.TotalCents,
			AvailableCents: balance.AvailableCents,
		},
		Entries: make([]entryPayload, 0, len(entries)),
	}
	for _, entry := range entries {
		payload.Entries = append(payload.Entries, entryPayload{
			EntryID:        entry.EntryID,
			Kind:           string(entry.Kind),
			AmountCents:    entry.AmountCents.Int64(),
			Ref:            entry.Ref,
			BookingID:      entry.BookingID,
			Metadata:       json.RawMessage(entry.MetadataJSON),
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, dataResponse(payload))
}

// --- risk ---

type riskProfilePayload struct {
	Type       string   `json:"type"`
	Percentage float64  `json:"percentage"`
	Message    string   `json:"message"`
	Tips       []string `json:"tips"`
	Tier       string   `json:"tier"`
	Factor     float64  `json:"factor"`
}

func (handler *httpHandler) handleRiskProfile(ctx *gin.Context) {
	userID := getClaims(ctx).Subject
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	display, err := handler.risk.Display(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "risk_profile", err)
		return
	}
	record, err := handler.risk.BonusMalus(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "risk_profile", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(riskProfilePayload{
		Type:       string(display.Type),
		Percentage: display.Percentage,
		Message:    display.Message,
		Tips:       display.Tips,
		Tier:       record.Tier.String(),
		Factor:     record.TotalFactor,
	}))
}

type depositQuoteRequest struct {
	BaseDepositCents int64 `json:"base_deposit_cents"`
}

type depositQuotePayload struct {
	BaseCents        int64   `json:"base_cents"`
	Tier             string  `json:"tier"`
	DiscountFraction float64 `json:"discount_fraction"`
	AdjustedCents    int64   `json:"adjusted_cents"`
	SavingsCents     int64   `json:"savings_cents"`
}

func (handler *httpHandler) handleDepositQuote(ctx *gin.Context) {
	var request depositQuoteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	quote, err := handler.risk.ApplyToDeposit(requestCtx, getClaims(ctx).Subject, request.BaseDepositCents)
	if err != nil {
		handler.respondError(ctx, "deposit_quote", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(depositQuotePayload{
		BaseCents:        quote.BaseCents,
		Tier:             quote.Tier.String(),
		DiscountFraction: quote.DiscountFraction,
		AdjustedCents:    quote.AdjustedCents,
		SavingsCents:     quote.SavingsCents,
	}))
}

// --- bank accounts ---

type bankAccountRequest struct {
	AccountType    string `json:"account_type"`
	AccountNumber  string `json:"account_number"`
	HolderName     string `json:"holder_name"`
	HolderDocument string `json:"holder_document"`
	BankName       string `json:"bank_name"`
}

type bankAccountPayload struct {
	AccountID      string `json:"account_id"`
	AccountType    string `json:"account_type"`
	AccountNumber  string `json:"account_number"`
	HolderName     string `json:"holder_name"`
	BankName       string `json:"bank_name,omitempty"`
	IsDefault      bool   `json:"is_default"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func mapBankAccountPayload(account withdrawal.BankAccount) bankAccountPayload {
	return bankAccountPayload{
		AccountID:      account.AccountID,
		AccountType:    account.AccountType.String(),
		AccountNumber:  account.AccountNumber,
		HolderName:     account.HolderName,
		BankName:       account.BankName,
		IsDefault:      account.IsDefault,
		CreatedUnixUTC: account.CreatedUnixUTC,
	}
}

func (handler *httpHandler) handleAddBankAccount(ctx *gin.Context) {
	var request bankAccountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	input, err := withdrawal.NewBankAccountInput(
		getClaims(ctx).Subject,
		request.AccountType,
		request.AccountNumber,
		request.HolderName,
		request.HolderDocument,
		request.BankName,
	)
	if err != nil {
		handler.respondError(ctx, "add_bank_account", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.withdrawals.AddBankAccount(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, "add_bank_account", err)
		return
	}
	ctx.JSON(http.StatusCreated, dataResponse(mapBankAccountPayload(account)))
}

func (handler *httpHandler) handleListBankAccounts(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	accounts, err := handler.withdrawals.BankAccounts(requestCtx, getClaims(ctx).Subject)
	if err != nil {
		handler.respondError(ctx, "list_bank_accounts", err)
		return
	}
	payload := make([]bankAccountPayload, 0, len(accounts))
	for _, account := range accounts {
		payload = append(payload, mapBankAccountPayload(account))
	}
	ctx.JSON(http.StatusOK, dataResponse(payload))
}

func (handler *httpHandler) handleSetDefaultAccount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	err := handler.withdrawals.SetDefaultAccount(requestCtx, getClaims(ctx).Subject, ctx.Param("accountID"))
	if err != nil {
		handler.respondError(ctx, "set_default_account", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{"account_id": ctx.Param("accountID")}))
}

func (handler *httpHandler) handleRemoveBankAccount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	err := handler.withdrawals.RemoveBankAccount(requestCtx, getClaims(ctx).Subject, ctx.Param("accountID"))
	if err != nil {
		handler.respondError(ctx, "remove_bank_account", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{"account_id": ctx.Param("accountID")}))
}

// --- withdrawals ---

type withdrawalRequestBody struct {
	BankAccountID string `json:"bank_account_id"`
	AmountCents   int64  `json:"amount_cents"`
	Notes         string `json:"notes"`
}

type withdrawalReceiptPayload struct {
	RequestID         string `json:"request_id"`
	AmountCents       int64  `json:"amount_cents"`
	FeeCents          int64  `json:"fee_cents"`
	NetCents          int64  `json:"net_cents"`
	NewAvailableCents int64  `json:"new_available_cents"`
}

type withdrawalPayload struct {
	RequestID       string `json:"request_id"`
	BankAccountID   string `json:"bank_account_id"`
	AmountCents     int64  `json:"amount_cents"`
	FeeCents        int64  `json:"fee_cents"`
	NetCents        int64  `json:"net_cents"`
	Status          string `json:"status"`
	UserNotes       string `json:"user_notes,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	AdminNotes      string `json:"admin_notes,omitempty"`
	CreatedUnixUTC  int64  `json:"created_unix_utc"`
	UpdatedUnixUTC  int64  `json:"updated_unix_utc"`
}

func mapWithdrawalPayload(request withdrawal.Request) withdrawalPayload {
	return withdrawalPayload{
		RequestID:       request.RequestID,
		BankAccountID:   request.BankAccountID,
		AmountCents:     request.AmountCents,
		FeeCents:        request.FeeCents,
		NetCents:        request.NetCents,
		Status:          request.Status.String(),
		UserNotes:       request.UserNotes,
		RejectionReason: request.RejectionReason,
		AdminNotes:      request.AdminNotes,
		CreatedUnixUTC:  request.CreatedUnixUTC,
		UpdatedUnixUTC:  request.UpdatedUnixUTC,
	}
}

func (handler *httpHandler) handleRequestWithdrawal(ctx *gin.Context) {
	var request withdrawalRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	receipt, err := handler.withdrawals.RequestWithdrawal(requestCtx, getClaims(ctx).Subject, request.BankAccountID, request.AmountCents, request.Notes)
	if err != nil {
		handler.respondError(ctx, "request_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusCreated, dataResponse(withdrawalReceiptPayload{
		RequestID:         receipt.RequestID,
		AmountCents:       receipt.AmountCents,
		FeeCents:          receipt.FeeCents,
		NetCents:          receipt.NetCents,
		NewAvailableCents: receipt.NewAvailableCents,
	}))
}

func (handler *httpHandler) handleListOwnWithdrawals(ctx *gin.Context) {
	filters := withdrawal.Filters{UserID: getClaims(ctx).Subject}
	if rawStatus := ctx.Query("status"); rawStatus != "" {
		status, err := withdrawal.ParseStatus(rawStatus)
		if err != nil {
			handler.respondError(ctx, "list_withdrawals", err)
			return
		}
		filters.Status = status
	}
	handler.listWithdrawals(ctx, filters)
}

func (handler *httpHandler) handleAdminListWithdrawals(ctx *gin.Context) {
	filters := withdrawal.Filters{UserID: ctx.Query("user_id")}
	if rawStatus := ctx.Query("status"); rawStatus != "" {
		status, err := withdrawal.ParseStatus(rawStatus)
		if err != nil {
			handler.respondError(ctx, "admin_list_withdrawals", err)
			return
		}
		filters.Status = status
	}
	handler.listWithdrawals(ctx, filters)
}

func (handler *httpHandler) listWithdrawals(ctx *gin.Context, filters withdrawal.Filters) {
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "limit must be a non-negative integer"))
			return
		}
		filters.Limit = limit
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	requests, err := handler.withdrawals.Requests(requestCtx, filters)
	if err != nil {
		handler.respondError(ctx, "list_withdrawals", err)
		return
	}
	payload := make([]withdrawalPayload, 0, len(requests))
	for _, request := range requests {
		payload = append(payload, mapWithdrawalPayload(request))
	}
	ctx.JSON(http.StatusOK, dataResponse(payload))
}

func (handler *httpHandler) handleCancelWithdrawal(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	request, err := handler.withdrawals.CancelRequest(requestCtx, getClaims(ctx).Subject, ctx.Param("requestID"))
	if err != nil {
		handler.respondError(ctx, "cancel_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(mapWithdrawalPayload(request)))
}

type approveRequestBody struct {
	AdminNotes string `json:"admin_notes"`
}

func (handler *httpHandler) handleApproveWithdrawal(ctx *gin.Context) {
	var request approveRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	completed, err := handler.withdrawals.ApproveWithdrawal(requestCtx, ctx.Param("requestID"), request.AdminNotes)
	if err != nil {
		handler.respondError(ctx, "approve_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(mapWithdrawalPayload(completed)))
}

type rejectRequestBody struct {
	Reason string `json:"reason"`
}

func (handler *httpHandler) handleRejectWithdrawal(ctx *gin.Context) {
	var request rejectRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	rejected, err := handler.withdrawals.RejectWithdrawal(requestCtx, ctx.Param("requestID"), request.Reason)
	if err != nil {
		handler.respondError(ctx, "reject_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(mapWithdrawalPayload(rejected)))
}

// --- cards ---

type saveCardRequest struct {
	Email     string `json:"email"`
	CardToken string `json:"card_token"`
}

type paymentMethodPayload struct {
	GatewayCardID  string `json:"gateway_card_id"`
	LastFour       string `json:"last_four"`
	Brand          string `json:"brand,omitempty"`
	ExpMonth       int    `json:"exp_month"`
	ExpYear        int    `json:"exp_year"`
	CardholderName string `json:"cardholder_name,omitempty"`
	IsDefault      bool   `json:"is_default"`
}

func mapPaymentMethodPayload(method preauth.SavedPaymentMethod) paymentMethodPayload {
	return paymentMethodPayload{
		GatewayCardID:  method.GatewayCardID,
		LastFour:       method.LastFour,
		Brand:          method.Brand,
		ExpMonth:       method.ExpMonth,
		ExpYear:        method.ExpYear,
		CardholderName: method.CardholderName,
		IsDefault:      method.IsDefault,
	}
}

func (handler *httpHandler) handleSaveCard(ctx *gin.Context) {
	var request saveCardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	method, err := handler.cards.SaveCard(requestCtx, getClaims(ctx).Subject, request.Email, request.CardToken)
	if err != nil {
		handler.respondError(ctx, "save_card", err)
		return
	}
	ctx.JSON(http.StatusCreated, dataResponse(mapPaymentMethodPayload(method)))
}

func (handler *httpHandler) handleListCards(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	methods, err := handler.cards.PaymentMethods(requestCtx, getClaims(ctx).Subject)
	if err != nil {
		handler.respondError(ctx, "list_cards", err)
		return
	}
	payload := make([]paymentMethodPayload, 0, len(methods))
	for _, method := range methods {
		payload = append(payload, mapPaymentMethodPayload(method))
	}
	ctx.JSON(http.StatusOK, dataResponse(payload))
}

// --- risk admin ---

type riskStatsPayload struct {
	TotalUsers     int     `json:"total_users"`
	UsersWithBonus int     `json:"users_with_bonus"`
	UsersWithMalus int     `json:"users_with_malus"`
	NeutralUsers   int     `json:"neutral_users"`
	AverageFactor  float64 `json:"average_factor"`
}

func (handler *httpHandler) handleRiskStats(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	stats, err := handler.risk.Stats(requestCtx)
	if err != nil {
		handler.respondError(ctx, "risk_stats", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(riskStatsPayload{
		TotalUsers:     stats.TotalUsers,
		UsersWithBonus: stats.UsersWithBonus,
		UsersWithMalus: stats.UsersWithMalus,
		NeutralUsers:   stats.UsersNeutral,
		AverageFactor:  stats.AverageFactor,
	}))
}

func (handler *httpHandler) handleRecalculateAll(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	recalculated, err := handler.risk.RecalculateAll(requestCtx)
	if err != nil {
		handler.respondError(ctx, "recalculate_all", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{"recalculated": recalculated}))
}

type metricsRequestBody struct {
	AverageRating    float64 `json:"average_rating"`
	CancellationRate float64 `json:"cancellation_rate"`
	CompletedRentals int     `json:"completed_rentals"`
	IsVerified       bool    `json:"is_verified"`
}

func (handler *httpHandler) handleUpsertMetrics(ctx *gin.Context) {
	var request metricsRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID := ctx.Param("userID")
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	err := handler.metrics.UpsertMetrics(requestCtx, userID, risk.Metrics{
		AverageRating:    request.AverageRating,
		CancellationRate: request.CancellationRate,
		CompletedRentals: request.CompletedRentals,
		IsVerified:       request.IsVerified,
	})
	if err != nil {
		handler.respondError(ctx, "upsert_metrics", err)
		return
	}
	record, err := handler.risk.Recalculate(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "upsert_metrics", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{
		"user_id": record.UserID,
		"factor":  record.TotalFactor,
		"tier":    record.Tier.String(),
	}))
}

// --- settlement ---

type guaranteeRequestBody struct {
	UserID            string `json:"user_id"`
	BaseDepositCents  int64  `json:"base_deposit_cents"`
	Instrument        string `json:"instrument"`
	GatewayCustomerID string `json:"gateway_customer_id"`
	GatewayCardID     string `json:"gateway_card_id"`
}

type guaranteePayload struct {
	BookingID     string  `json:"booking_id"`
	Instrument    string  `json:"instrument"`
	Tier          string  `json:"tier"`
	BaseCents     int64   `json:"base_cents"`
	AdjustedCents int64   `json:"adjusted_cents"`
	Discount      float64 `json:"discount_fraction"`
	Ref           string  `json:"ref,omitempty"`
	PaymentID     string  `json:"payment_id,omitempty"`
	HoldStatus    string  `json:"hold_status,omitempty"`
	FullyWaived   bool    `json:"fully_waived"`
}

func (handler *httpHandler) handleBookingGuarantee(ctx *gin.Context) {
	var request guaranteeRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	outcome, err := handler.settlement.OnBookingCreated(requestCtx, settlement.BookingEvent{
		BookingID:         ctx.Param("bookingID"),
		UserID:            request.UserID,
		BaseDepositCents:  request.BaseDepositCents,
		Instrument:        settlement.FundingInstrument(request.Instrument),
		GatewayCustomerID: request.GatewayCustomerID,
		GatewayCardID:     request.GatewayCardID,
	})
	if err != nil {
		handler.respondError(ctx, "booking_guarantee", err)
		return
	}
	ctx.JSON(http.StatusCreated, dataResponse(guaranteePayload{
		BookingID:     ctx.Param("bookingID"),
		Instrument:    string(outcome.Instrument),
		Tier:          outcome.Quote.Tier.String(),
		BaseCents:     outcome.Quote.BaseCents,
		AdjustedCents: outcome.Quote.AdjustedCents,
		Discount:      outcome.Quote.DiscountFraction,
		Ref:           outcome.Ref,
		PaymentID:     outcome.PaymentID,
		HoldStatus:    outcome.HoldStatus,
		FullyWaived:   outcome.FullyWaived,
	}))
}

type cancellationRequestBody struct {
	UserID     string `json:"user_id"`
	Instrument string `json:"instrument"`
	PaymentID  string `json:"payment_id"`
}

func (handler *httpHandler) handleBookingCancelled(ctx *gin.Context) {
	var request cancellationRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	err := handler.settlement.OnBookingCancelled(requestCtx, settlement.CancellationEvent{
		BookingID:  ctx.Param("bookingID"),
		UserID:     request.UserID,
		Instrument: settlement.FundingInstrument(request.Instrument),
		PaymentID:  request.PaymentID,
	})
	if err != nil {
		handler.respondError(ctx, "booking_cancelled", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{"booking_id": ctx.Param("bookingID")}))
}

type renewHoldRequestBody struct {
	BookingID         string `json:"booking_id"`
	GatewayCustomerID string `json:"gateway_customer_id"`
	GatewayCardID     string `json:"gateway_card_id"`
	AmountCents       int64  `json:"amount_cents"`
	ExpiringPaymentID string `json:"expiring_payment_id"`
}

func (handler *httpHandler) handleRenewHold(ctx *gin.Context) {
	var request renewHoldRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.settlement.OnHoldExpiring(requestCtx, settlement.HoldExpiryEvent{
		BookingID:         request.BookingID,
		GatewayCustomerID: request.GatewayCustomerID,
		GatewayCardID:     request.GatewayCardID,
		AmountCents:       request.AmountCents,
		ExpiringPaymentID: request.ExpiringPaymentID,
	})
	if err != nil {
		handler.respondError(ctx, "renew_hold", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{
		"payment_id":    result.PaymentID,
		"status":        result.Status,
		"status_detail": result.StatusDetail,
	}))
}

func (handler *httpHandler) handleReconcileHold(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payment, err := handler.settlement.ReconcileHold(requestCtx, ctx.Param("paymentID"))
	if err != nil {
		handler.respondError(ctx, "reconcile_hold", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{
		"payment_id":         payment.ID,
		"status":             payment.Status,
		"status_detail":      payment.StatusDetail,
		"transaction_amount": payment.TransactionAmount,
		"external_reference": payment.ExternalReference,
		"captured":           payment.Captured,
	}))
}

type franchiseChargeRequestBody struct {
	RenterID    string `json:"renter_id"`
	BookingID   string `json:"booking_id"`
	AmountCents int64  `json:"amount_cents"`
	ClaimRef    string `json:"claim_ref"`
}

func (handler *httpHandler) handleChargeFranchise(ctx *gin.Context) {
	var request franchiseChargeRequestBody
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	err := handler.settlement.ChargeFranchise(requestCtx, request.RenterID, request.BookingID, request.AmountCents, request.ClaimRef)
	if err != nil {
		handler.respondError(ctx, "charge_franchise", err)
		return
	}
	ctx.JSON(http.StatusOK, dataResponse(gin.H{"claim_ref": request.ClaimRef}))
}
