// rocketshoes-cartservice/services/cart_service.go

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/norun9/rocketshoes-cartservice/cart"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	cookieSessionID = "shop_session-id"
	cookieMaxAge    = 60 * 60 * 48
)

type ctxKeySessionID struct{}

// CartServiceServer exposes the cart operations to the storefront UI over HTTP.
type CartServiceServer struct {
	sessions *cart.Sessions
	log      logrus.FieldLogger
}

// NewCartServiceServer creates a server instance with the session registry injected.
func NewCartServiceServer(sessions *cart.Sessions, log logrus.FieldLogger) *CartServiceServer {
	return &CartServiceServer{
		sessions: sessions,
		log:      log,
	}
}

type cartResponse struct {
	Cart    []cart.LineItem `json:"cart"`
	Updated *bool           `json:"updated,omitempty"`
}

type updateAmountRequest struct {
	Amount *int `json:"amount"`
}

// Handler returns the routed and instrumented HTTP handler.
func (s *CartServiceServer) Handler(serviceName string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/cart", s.getCartHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/cart/products/{productId:[0-9]+}", s.addProductHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/products/{productId:[0-9]+}", s.removeProductHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cart/products/{productId:[0-9]+}", s.updateProductAmountHandler).Methods(http.MethodPut)
	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Use(otelmux.Middleware(serviceName))
	r.Use(s.ensureSessionID)
	return r
}

func (s *CartServiceServer) getCartHandler(w http.ResponseWriter, r *http.Request) {
	store := s.sessions.Get(r.Context(), sessionID(r))
	s.writeJSON(w, http.StatusOK, cartResponse{Cart: store.Cart()})
}

func (s *CartServiceServer) addProductHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := s.productID(w, r)
	if !ok {
		return
	}
	store := s.sessions.Get(r.Context(), sessionID(r))
	updated := store.AddProduct(r.Context(), productID)
	s.writeJSON(w, http.StatusOK, cartResponse{Cart: store.Cart(), Updated: &updated})
}

func (s *CartServiceServer) removeProductHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := s.productID(w, r)
	if !ok {
		return
	}
	store := s.sessions.Get(r.Context(), sessionID(r))
	updated := store.RemoveProduct(r.Context(), productID)
	s.writeJSON(w, http.StatusOK, cartResponse{Cart: store.Cart(), Updated: &updated})
}

func (s *CartServiceServer) updateProductAmountHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := s.productID(w, r)
	if !ok {
		return
	}
	var body updateAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount == nil {
		s.renderError(w, r, http.StatusBadRequest, "body must be a JSON object with an integer amount")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("app.amount", *body.Amount))

	store := s.sessions.Get(r.Context(), sessionID(r))
	updated := store.UpdateProductAmount(r.Context(), cart.UpdateProductAmount{
		ProductID: productID,
		Amount:    *body.Amount,
	})
	s.writeJSON(w, http.StatusOK, cartResponse{Cart: store.Cart(), Updated: &updated})
}

func (s *CartServiceServer) productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["productId"])
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("app.product_id", id))
	return id, true
}

// ensureSessionID issues a session cookie when the request carries none or
// its value is not a uuid.
func (s *CartServiceServer) ensureSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(cookieSessionID); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     cookieSessionID,
				Value:    id,
				Path:     "/",
				MaxAge:   cookieMaxAge,
				HttpOnly: true,
			})
		}
		ctx := context.WithValue(r.Context(), ctxKeySessionID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeySessionID{}).(string)
	return v
}

func (s *CartServiceServer) renderError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.log.WithFields(logrus.Fields{
		"http.req.path":   r.URL.Path,
		"http.req.method": r.Method,
		"http.resp.code":  code,
	}).Warn(msg)
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *CartServiceServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}
