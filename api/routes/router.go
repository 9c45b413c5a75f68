package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mowistore/storefront-backend/api/controllers"
	"github.com/mowistore/storefront-backend/api/middleware"
	cartsvc "github.com/mowistore/storefront-backend/internal/cart"
	categorysvc "github.com/mowistore/storefront-backend/internal/categories"
	couponsvc "github.com/mowistore/storefront-backend/internal/coupons"
	ordersvc "github.com/mowistore/storefront-backend/internal/orders"
	paymentsvc "github.com/mowistore/storefront-backend/internal/payments"
	productsvc "github.com/mowistore/storefront-backend/internal/products"
	reviewsvc "github.com/mowistore/storefront-backend/internal/reviews"
	searchsvc "github.com/mowistore/storefront-backend/internal/search"
	"github.com/mowistore/storefront-backend/pkg/config"
	"github.com/mowistore/storefront-backend/pkg/logger"
	pkgredis "github.com/mowistore/storefront-backend/pkg/redis"
)

// Deps carries everything the router needs wired in.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Redis      *pkgredis.Client
	Registry   *prometheus.Registry
	Products   productsvc.Service
	Categories categorysvc.Service
	Cart       cartsvc.Service
	Orders     ordersvc.Service
	Payments   paymentsvc.Service
	Reviews    reviewsvc.Service
	Coupons    couponsvc.Service
	Search     searchsvc.Service
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.DB, cachePinger(deps.Redis), deps.Logger))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), deps.Logger))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductsList(deps.Products, deps.Logger))
			r.Post("/", controllers.ProductsCreate(deps.Products, deps.Logger))
			r.Get("/{productId}", controllers.ProductsGet(deps.Products, deps.Logger))
			r.Put("/{productId}", controllers.ProductsUpdate(deps.Products, deps.Logger))
			r.Delete("/{productId}", controllers.ProductsDelete(deps.Products, deps.Logger))
			r.Get("/{productId}/reviews", controllers.ReviewsListByProduct(deps.Reviews, deps.Logger))
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.CategoriesList(deps.Categories, deps.Logger))
			r.Post("/", controllers.CategoriesCreate(deps.Categories, deps.Logger))
			r.Delete("/{categoryId}", controllers.CategoriesDelete(deps.Categories, deps.Logger))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Cart, deps.Logger))
			r.Delete("/", controllers.CartClear(deps.Cart, deps.Logger))
			r.Post("/items", controllers.CartAddItem(deps.Cart, deps.Logger))
			r.Put("/items", controllers.CartSetQuantity(deps.Cart, deps.Logger))
			r.Delete("/items/{lineId}", controllers.CartRemoveItem(deps.Cart, deps.Logger))
		})

		r.Post("/checkout", controllers.Checkout(deps.Orders, deps.Logger))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, deps.Logger))
			r.Get("/{orderId}", controllers.OrdersGet(deps.Orders, deps.Logger))
			r.Put("/{orderId}/status", controllers.OrdersUpdateStatus(deps.Orders, deps.Logger))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.PaymentsCreateIntent(deps.Payments, deps.Logger))
			r.Post("/confirm", controllers.PaymentsConfirm(deps.Payments, deps.Logger))
			r.Get("/status/{orderId}", controllers.PaymentsStatus(deps.Payments, deps.Logger))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", controllers.ReviewsCreate(deps.Reviews, deps.Logger))
			r.Delete("/{reviewId}", controllers.ReviewsDelete(deps.Reviews, deps.Logger))
		})

		r.Post("/search/ai", controllers.SearchAI(deps.Search, deps.Logger))

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", controllers.CouponsList(deps.Coupons, deps.Logger))
			r.Post("/", controllers.CouponsCreate(deps.Coupons, deps.Logger))
			r.Post("/validate", controllers.CouponsValidate(deps.Coupons, deps.Logger))
			r.Post("/redeem", controllers.CouponsRedeem(deps.Coupons, deps.Logger))
			r.Delete("/{couponId}", controllers.CouponsDeactivate(deps.Coupons, deps.Logger))
		})
	})

	return r
}

func cachePinger(client *pkgredis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *pkgredis.Client) pkgredis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
