// Package httpapi реализует REST API магазина на gin: каталог, корзина, заказы и платёжный поток eSewa.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/catalog"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookstore/internal/service/payment"
)

// CatalogService описывает операции каталога, нужные обработчикам.
type CatalogService interface {
	List(ctx context.Context, search string, page, limit int) (catalog.Page, error)
	Get(ctx context.Context, id string) (domain.Book, error)
	Create(ctx context.Context, book domain.Book) (domain.Book, error)
	Update(ctx context.Context, id string, upd catalog.BookUpdate) (domain.Book, error)
	Delete(ctx context.Context, id string) error
}

// CartService описывает операции корзины.
type CartService interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID, bookID string, qty int32) (domain.Cart, error)
	UpdateItem(ctx context.Context, userID, bookID string, qty int32) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID, bookID string) (domain.Cart, error)
	Clear(ctx context.Context, userID string) (domain.Cart, error)
}

// OrderService описывает оформление и чтение заказов.
type OrderService interface {
	CreateFromCart(ctx context.Context, userID string) (domain.Order, error)
	Get(ctx context.Context, orderID, userID string) (domain.Order, error)
	List(ctx context.Context, userID string) ([]domain.Order, error)
	Timeline(ctx context.Context, orderID, userID string) ([]domain.TimelineEvent, error)
}

// PaymentService описывает платёжный поток.
type PaymentService interface {
	InitiatePayment(ctx context.Context, orderID, userID string) (payment.PaymentRequest, error)
	VerifyCallback(ctx context.Context, encoded string) (payment.CallbackResult, error)
	HandleFailureRedirect(ctx context.Context, params map[string][]string) payment.FailureResult
	PollStatus(ctx context.Context, orderID, userID string) (payment.StatusResult, error)
}

// Services собирает зависимости обработчиков.
type Services struct {
	Catalog  CatalogService
	Cart     CartService
	Orders   OrderService
	Payments PaymentService
	// Idempotency включает повтор ответа по заголовку Idempotency-Key; nil отключает.
	Idempotency domain.IdempotencyRepository
}

// Server собирает маршруты API.
type Server struct {
	svc         Services
	guard       *idempotency.Guard
	logger      *log.Entry
	serviceName string
	router      *gin.Engine
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceName задаёт имя сервиса для спанов otelgin.
func WithServiceName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// NewServer создаёт API и регистрирует маршруты.
func NewServer(svc Services, opts ...Option) *Server {
	s := &Server{
		svc:         svc,
		logger:      log.WithField("component", "http-api"),
		serviceName: "bookstore-api",
	}
	for _, opt := range opts {
		opt(s)
	}
	if svc.Idempotency != nil {
		s.guard = idempotency.NewGuard(svc.Idempotency, idempotency.DefaultTTL)
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(s.serviceName), s.requestLogger())
	s.routes(router)
	s.router = router
	return s
}

// Handler возвращает http.Handler для http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")

	books := api.Group("/books")
	books.GET("", s.listBooks)
	books.GET("/search", s.searchBooks)
	books.GET("/:id", s.getBook)
	books.POST("", requireUser(), requireAdmin(), s.createBook)
	books.PATCH("/:id", requireUser(), requireAdmin(), s.updateBook)
	books.DELETE("/:id", requireUser(), requireAdmin(), s.deleteBook)

	cart := api.Group("/cart", requireUser())
	cart.GET("", s.getCart)
	cart.POST("/items", s.addCartItem)
	cart.PUT("/items/:bookId", s.updateCartItem)
	cart.DELETE("/items/:bookId", s.removeCartItem)
	cart.DELETE("", s.clearCart)

	orders := api.Group("/orders", requireUser())
	orders.POST("", s.idempotent(), s.createOrder)
	orders.GET("", s.listOrders)
	orders.GET("/:orderId", s.getOrder)
	orders.GET("/:orderId/timeline", s.orderTimeline)

	esewa := api.Group("/payment/esewa")
	esewa.POST("/init/:orderId", requireUser(), s.idempotent(), s.initiatePayment)
	esewa.GET("/verify", s.verifyPayment)
	esewa.GET("/failed", s.paymentFailed)
	esewa.GET("/status/:orderId", requireUser(), s.paymentStatus)
}
