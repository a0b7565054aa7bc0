// rocketshoes-cartservice/cart/cart.go

package cart

import (
	"context"
	"encoding/json"
)

// StorageKey is the slot the cart snapshot is written to.
const StorageKey = "@RocketShoes:cart"

// Product holds the display fields copied from the product service when an
// item is first added. Fields beyond the known ones are kept in Extra and
// written back unchanged.
type Product struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`

	Extra map[string]json.RawMessage `json:"-"`
}

// LineItem is one product entry in the cart with its quantity.
type LineItem struct {
	Product
	Amount int `json:"amount"`
}

// Stock is the remote-authoritative available quantity for a product.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// UpdateProductAmount is the argument of Store.UpdateProductAmount.
type UpdateProductAmount struct {
	ProductID int `json:"productId"`
	Amount    int `json:"amount"`
}

// StockService looks up current stock for a product.
type StockService interface {
	GetStock(ctx context.Context, productID int) (Stock, error)
}

// ProductService looks up product display details.
type ProductService interface {
	GetProduct(ctx context.Context, productID int) (Product, error)
}

// PersistentStore is a key-value slot that survives process restarts.
type PersistentStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// User-facing notification messages.
const (
	MsgOutOfStock   = "Requested quantity is out of stock"
	MsgAddFailed    = "Failed to add product"
	MsgRemoveFailed = "Failed to remove product"
	MsgUpdateFailed = "Failed to update product quantity"
)

const notificationTopic = "cart"

// Notification is a fire-and-forget message for the user.
type Notification struct {
	Level     Level  `json:"level"`
	Topic     string `json:"topic"`
	Message   string `json:"message"`
	ProductID int    `json:"productId,omitempty"`
}

// NotificationSink receives notifications. Implementations must not block
// for long and never report failures back.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, n Notification)

func (f NotificationSinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
