package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ankitchauhan1221/maluk-backend/internal/coupon"
	"github.com/ankitchauhan1221/maluk-backend/internal/handler"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

func NewRouter(orders order.Service, coupons coupon.Service, frontendURL string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(handler.WithIdentity)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	oh := handler.NewOrderHandler(orders)
	ph := handler.NewPaymentHandler(orders, frontendURL)
	sh := handler.NewShippingHandler(orders)
	ch := handler.NewCouponHandler(coupons)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.RequireAuth(oh.Create))
			r.Get("/", handler.RequireAuth(oh.ListMine))
			r.Get("/all", handler.RequireAdmin(oh.ListAll))
			r.Get("/{orderId}", oh.Get)
			r.Post("/{orderId}/cancellation-request", handler.RequireAuth(oh.RequestCancellation))
			r.Post("/{orderId}/cancel", handler.RequireAdmin(oh.Cancel))
			r.Get("/{orderId}/refund-status", handler.RequireAdmin(oh.RefundStatus))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Get("/status", ph.Status)
			r.Get("/callback", ph.Callback)
		})
		r.Post("/shipping/webhook", sh.Webhook)
		r.Post("/coupons/apply", ch.Apply)
	})

	return r
}
