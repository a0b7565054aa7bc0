// rocketshoes-cartservice/cart/store.go

package cart

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/norun9/rocketshoes-cartservice/cart"

const (
	opAdd    = "AddProduct"
	opRemove = "RemoveProduct"
	opUpdate = "UpdateProductAmount"

	outcomeUpdated  = "updated"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
	outcomeIgnored  = "ignored"
)

// Deps are the collaborators a Store is built from.
type Deps struct {
	Stock    StockService
	Products ProductService
	Storage  PersistentStore
	Notifier NotificationSink
	Logger   logrus.FieldLogger
}

// Store holds one session's cart in memory and mirrors it to a
// PersistentStore after every mutation.
//
// Operations are serialized: each one holds the store lock across its remote
// lookups, so an operation never observes a cart another operation is about
// to replace.
type Store struct {
	mu    sync.Mutex
	items []LineItem

	stock    StockService
	products ProductService
	storage  PersistentStore
	notifier NotificationSink
	log      logrus.FieldLogger

	tracer trace.Tracer
	ops    metric.Int64Counter
}

// New builds a Store and hydrates it from the storage slot. A missing or
// unreadable snapshot yields an empty cart.
func New(ctx context.Context, deps Deps) *Store {
	s := &Store{
		stock:    deps.Stock,
		products: deps.Products,
		storage:  deps.Storage,
		notifier: deps.Notifier,
		log:      deps.Logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	if s.notifier == nil {
		s.notifier = NotificationSinkFunc(func(context.Context, Notification) {})
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	ops, err := otel.Meter(instrumentationName).Int64Counter("cart.operations",
		metric.WithDescription("Cart operations by outcome"))
	if err != nil {
		s.log.WithError(err).Warn("cart: failed to create operations counter")
		ops, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("cart.operations")
	}
	s.ops = ops

	s.hydrate(ctx)
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "cart.Hydrate")
	defer span.End()

	s.items = []LineItem{}

	data, ok, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		span.RecordError(err)
		s.log.WithError(err).Warn("cart: failed to read snapshot, starting empty")
		return
	}
	if !ok {
		return
	}

	items, dropped, err := DecodeSnapshot(data)
	if err != nil {
		span.RecordError(err)
		s.log.WithError(err).Warn("cart: snapshot is unparsable, starting empty")
		return
	}
	if dropped > 0 {
		s.log.WithField("dropped", dropped).Warn("cart: dropped invalid snapshot entries")
	}
	s.items = items
	span.SetAttributes(attribute.Int("app.cart.items", len(items)))
}

// Cart returns a copy of the current line items in insertion order.
func (s *Store) Cart() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// AddProduct adds one unit of productID, subject to stock. It reports
// whether the cart changed.
func (s *Store) AddProduct(ctx context.Context, productID int) bool {
	ctx, span := s.start(ctx, opAdd, productID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	stock, err := s.stock.GetStock(ctx, productID)
	if err != nil {
		return s.fail(ctx, span, opAdd, productID, MsgAddFailed, err)
	}

	if i := s.indexOf(productID); i >= 0 {
		if stock.Amount <= s.items[i].Amount {
			return s.reject(ctx, span, opAdd, productID)
		}
		next := s.clone()
		next[i].Amount++
		return s.commit(ctx, span, opAdd, productID, next, MsgAddFailed)
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return s.fail(ctx, span, opAdd, productID, MsgAddFailed, err)
	}
	if stock.Amount <= 0 {
		s.log.WithField("product_id", productID).Debug("cart: product has no stock, not added")
		s.record(ctx, opAdd, outcomeIgnored)
		return false
	}

	product.ID = productID
	delete(product.Extra, "amount")
	next := append(s.clone(), LineItem{Product: product, Amount: 1})
	return s.commit(ctx, span, opAdd, productID, next, MsgAddFailed)
}

// RemoveProduct removes the line item for productID.
func (s *Store) RemoveProduct(ctx context.Context, productID int) bool {
	ctx, span := s.start(ctx, opRemove, productID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return s.notFound(ctx, span, opRemove, productID, MsgRemoveFailed)
	}

	next := make([]LineItem, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	return s.commit(ctx, span, opRemove, productID, next, MsgRemoveFailed)
}

// UpdateProductAmount sets the amount of an existing line item. Amounts
// below one are ignored rather than treated as removal.
func (s *Store) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) bool {
	ctx, span := s.start(ctx, opUpdate, req.ProductID)
	defer span.End()
	span.SetAttributes(attribute.Int("app.amount", req.Amount))

	if req.Amount <= 0 {
		s.record(ctx, opUpdate, outcomeIgnored)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stock, err := s.stock.GetStock(ctx, req.ProductID)
	if err != nil {
		return s.fail(ctx, span, opUpdate, req.ProductID, MsgUpdateFailed, err)
	}
	if req.Amount > stock.Amount {
		return s.reject(ctx, span, opUpdate, req.ProductID)
	}

	i := s.indexOf(req.ProductID)
	if i < 0 {
		return s.notFound(ctx, span, opUpdate, req.ProductID, MsgUpdateFailed)
	}

	next := s.clone()
	next[i].Amount = req.Amount
	return s.commit(ctx, span, opUpdate, req.ProductID, next, MsgUpdateFailed)
}

func (s *Store) start(ctx context.Context, op string, productID int) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "cart."+op, trace.WithAttributes(
		attribute.Int("app.product_id", productID),
	))
}

func (s *Store) indexOf(productID int) int {
	for i, item := range s.items {
		if item.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) clone() []LineItem {
	out := make([]LineItem, len(s.items), len(s.items)+1)
	copy(out, s.items)
	return out
}

// commit persists next and only then makes it the in-memory cart.
func (s *Store) commit(ctx context.Context, span trace.Span, op string, productID int, next []LineItem, failMsg string) bool {
	data, err := EncodeSnapshot(next)
	if err == nil {
		err = s.storage.Set(ctx, StorageKey, data)
	}
	if err != nil {
		return s.fail(ctx, span, op, productID, failMsg, err)
	}

	s.items = next
	span.SetAttributes(attribute.Int("app.cart.items", len(next)))
	s.record(ctx, op, outcomeUpdated)
	return true
}

func (s *Store) reject(ctx context.Context, span trace.Span, op string, productID int) bool {
	span.AddEvent("out of stock")
	s.log.WithFields(logrus.Fields{"operation": op, "product_id": productID}).Info("cart: requested quantity is out of stock")
	s.notify(ctx, LevelWarning, MsgOutOfStock, productID)
	s.record(ctx, op, outcomeRejected)
	return false
}

func (s *Store) notFound(ctx context.Context, span trace.Span, op string, productID int, msg string) bool {
	span.AddEvent("product not in cart")
	s.log.WithFields(logrus.Fields{"operation": op, "product_id": productID}).Info("cart: product not in cart")
	s.notify(ctx, LevelError, msg, productID)
	s.record(ctx, op, outcomeRejected)
	return false
}

func (s *Store) fail(ctx context.Context, span trace.Span, op string, productID int, msg string, err error) bool {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.WithError(err).WithFields(logrus.Fields{"operation": op, "product_id": productID}).Error("cart: operation failed")
	s.notify(ctx, LevelError, msg, productID)
	s.record(ctx, op, outcomeFailed)
	return false
}

func (s *Store) notify(ctx context.Context, level Level, msg string, productID int) {
	s.notifier.Notify(ctx, Notification{
		Level:     level,
		Topic:     notificationTopic,
		Message:   msg,
		ProductID: productID,
	})
}

func (s *Store) record(ctx context.Context, op, outcome string) {
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
