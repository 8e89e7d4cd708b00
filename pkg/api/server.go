package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mnzioki/dukabook/pkg/auth"
	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/storage"
	"github.com/mnzioki/dukabook/pkg/subscriptions"
	"github.com/mnzioki/dukabook/pkg/usage"
)

// UserDirectory is the account surface the auth handlers need.
// *auth.UserStore satisfies it.
type UserDirectory interface {
	Register(ctx context.Context, email, password, businessName string) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	Get(ctx context.Context, userID string) (*auth.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

// ReceiptStore is the object-storage surface handlers need for expense
// receipts. *postgres.S3Client satisfies it.
type ReceiptStore interface {
	PutReceipt(ctx context.Context, content []byte, contentType string) (string, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
}

// Config collects the dependencies a Server needs.
type Config struct {
	Store         storage.Store
	Users         UserDirectory
	Tokens        *auth.TokenManager
	Usage         usage.Service
	Subscriptions subscriptions.Service
	Notifier      *notifications.Notifier
	Journal       notifications.Journal
	Hub           *notifications.Hub
	Receipts      ReceiptStore

	// RateLimit is an optional middleware applied after authentication.
	RateLimit func(http.Handler) http.Handler

	Logger *observability.Logger
}

// Server represents the DukaBook API server.
type Server struct {
	store    storage.Store
	users    UserDirectory
	tokens   *auth.TokenManager
	usage    usage.Service
	subs     subscriptions.Service
	notifier *notifications.Notifier
	journal  notifications.Journal
	hub      *notifications.Hub
	receipts ReceiptStore
	logger   *observability.Logger
	router   *mux.Router
}

// NewServer creates a new API server and wires its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}

	s := &Server{
		store:    cfg.Store,
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		usage:    cfg.Usage,
		subs:     cfg.Subscriptions,
		notifier: cfg.Notifier,
		journal:  cfg.Journal,
		hub:      cfg.Hub,
		receipts: cfg.Receipts,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	s.setupRoutes(cfg.RateLimit)
	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes(rateLimit func(http.Handler) http.Handler) {
	s.router.Use(httputil.RequestIDMiddleware, httputil.LoggingMiddleware(s.logger), httputil.RecoveryMiddleware(s.logger))

	s.router.HandleFunc("/health", s.health).Methods("GET")

	public := s.router.PathPrefix("/api/v1").Subrouter()
	public.HandleFunc("/auth/register", s.register).Methods("POST")
	public.HandleFunc("/auth/login", s.login).Methods("POST")

	authMW := middleware.NewAuthMiddleware(s.tokens, false)
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Handler)
	if rateLimit != nil {
		api.Use(rateLimit)
	}

	api.HandleFunc("/auth/me", s.me).Methods("GET")
	api.HandleFunc("/auth/password", s.changePassword).Methods("POST")

	api.HandleFunc("/payment-methods", s.listPaymentMethods).Methods("GET")

	limits := middleware.NewUsageLimitMiddleware(s.usage)

	api.Handle("/sales", limits.EnforceLimit("sales")(http.HandlerFunc(s.createSale))).Methods("POST")
	api.HandleFunc("/sales", s.listSales).Methods("GET")
	api.HandleFunc("/sales/{id}", s.getSale).Methods("GET")
	api.HandleFunc("/sales/{id}/payments", s.recordPayment).Methods("POST")
	api.HandleFunc("/sales/{id}/payments", s.listPayments).Methods("GET")

	api.Handle("/products", limits.EnforceLimit("products")(http.HandlerFunc(s.createProduct))).Methods("POST")
	api.HandleFunc("/products", s.listProducts).Methods("GET")
	api.HandleFunc("/products/low-stock", s.listLowStock).Methods("GET")
	api.HandleFunc("/products/{id}", s.getProduct).Methods("GET")
	api.HandleFunc("/products/{id}", s.updateProduct).Methods("PUT")
	api.HandleFunc("/products/{id}", s.deleteProduct).Methods("DELETE")
	api.HandleFunc("/products/{id}/stock", s.adjustStock).Methods("POST")

	api.Handle("/customers", limits.EnforceLimit("customers")(http.HandlerFunc(s.createCustomer))).Methods("POST")
	api.HandleFunc("/customers", s.listCustomers).Methods("GET")
	api.HandleFunc("/customers/{id}", s.getCustomer).Methods("GET")
	api.HandleFunc("/customers/{id}", s.updateCustomer).Methods("PUT")
	api.HandleFunc("/customers/{id}", s.deleteCustomer).Methods("DELETE")

	api.Handle("/expenses", limits.EnforceLimit("expenses")(http.HandlerFunc(s.createExpense))).Methods("POST")
	api.HandleFunc("/expenses", s.listExpenses).Methods("GET")
	api.HandleFunc("/expenses/{id}", s.getExpense).Methods("GET")
	api.HandleFunc("/expenses/{id}", s.updateExpense).Methods("PUT")
	api.HandleFunc("/expenses/{id}", s.deleteExpense).Methods("DELETE")
	api.HandleFunc("/expenses/{id}/receipt", s.uploadReceipt).Methods("POST")
	api.HandleFunc("/expenses/{id}/receipt", s.downloadReceipt).Methods("GET")

	api.Handle("/invoices", limits.EnforceLimit("invoices")(http.HandlerFunc(s.createInvoice))).Methods("POST")
	api.HandleFunc("/invoices", s.listInvoices).Methods("GET")
	api.HandleFunc("/invoices/{id}", s.getInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/status", s.updateInvoiceStatus).Methods("PUT")
	api.HandleFunc("/invoices/{id}/pay", s.payInvoice).Methods("POST")

	api.HandleFunc("/usage", s.currentUsage).Methods("GET")
	api.HandleFunc("/usage/stats", s.usageStats).Methods("GET")

	api.HandleFunc("/subscription", s.getSubscription).Methods("GET")
	api.HandleFunc("/subscription", s.changePlan).Methods("PUT")
	api.HandleFunc("/subscription", s.cancelSubscription).Methods("DELETE")
	api.HandleFunc("/subscription/reactivate", s.reactivateSubscription).Methods("POST")
	api.HandleFunc("/subscription/history", s.subscriptionHistory).Methods("GET")

	api.HandleFunc("/notifications/subscriptions", s.listPushSubscriptions).Methods("GET")
	api.HandleFunc("/notifications/subscriptions", s.registerPushSubscription).Methods("POST")
	api.HandleFunc("/notifications/subscriptions", s.unregisterPushSubscription).Methods("DELETE")

	api.HandleFunc("/reports/{entity}/export", s.exportReport).Methods("GET")

	api.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		httputil.WriteServiceUnavailable(w, "storage unavailable")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// writeDomainError translates ledger and auth errors into HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case ledger.IsValidation(err):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ledger.ErrOverpayment):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, auth.ErrEmailTaken):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid email or password")
	default:
		s.logger.WithError(err).Error("Request failed")
		httputil.WriteInternalError(w, err)
	}
}
