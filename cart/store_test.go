package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

type fakeAPI struct {
	mu       sync.Mutex
	stock    map[int]int
	products map[int]Product

	stockErr   error
	productErr error
	calls      []string
}

func newFakeAPI(stock map[int]int) *fakeAPI {
	products := make(map[int]Product, len(stock))
	for id := range stock {
		products[id] = Product{ID: id, Title: "Tênis", Price: 139.9, Image: "https://example.com/shoe.jpg"}
	}
	return &fakeAPI{stock: stock, products: products}
}

func (f *fakeAPI) GetStock(ctx context.Context, productID int) (Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stock")
	if f.stockErr != nil {
		return Stock{}, f.stockErr
	}
	amount, ok := f.stock[productID]
	if !ok {
		return Stock{}, errors.New("404")
	}
	return Stock{ID: productID, Amount: amount}, nil
}

func (f *fakeAPI) GetProduct(ctx context.Context, productID int) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "product")
	if f.productErr != nil {
		return Product{}, f.productErr
	}
	p, ok := f.products[productID]
	if !ok {
		return Product{}, errors.New("404")
	}
	return p, nil
}

type memSlot struct {
	data   map[string]string
	setErr error
	getErr error
	writes int
}

func newMemSlot() *memSlot { return &memSlot{data: map[string]string{}} }

func (m *memSlot) Get(ctx context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memSlot) Set(ctx context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.writes++
	m.data[key] = value
	return nil
}

type recorder struct {
	got []Notification
}

func (r *recorder) Notify(ctx context.Context, n Notification) { r.got = append(r.got, n) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

type fixture struct {
	api   *fakeAPI
	slot  *memSlot
	notes *recorder
	store *Store
}

func newFixture(t *testing.T, stock map[int]int, initial []LineItem) *fixture {
	t.Helper()
	f := &fixture{api: newFakeAPI(stock), slot: newMemSlot(), notes: &recorder{}}
	if initial != nil {
		data, err := EncodeSnapshot(initial)
		if err != nil {
			t.Fatal(err)
		}
		f.slot.data[StorageKey] = data
	}
	f.store = New(context.Background(), Deps{
		Stock:    f.api,
		Products: f.api,
		Storage:  f.slot,
		Notifier: f.notes,
		Logger:   quietLogger(),
	})
	return f
}

func (f *fixture) persisted(t *testing.T) []LineItem {
	t.Helper()
	data, ok := f.slot.data[StorageKey]
	if !ok {
		return nil
	}
	items, _, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("persisted snapshot: %v", err)
	}
	return items
}

func item(id, amount int) LineItem {
	return LineItem{
		Product: Product{ID: id, Title: "Tênis", Price: 139.9, Image: "https://example.com/shoe.jpg"},
		Amount:  amount,
	}
}

func TestAddProductNewItem(t *testing.T) {
	f := newFixture(t, map[int]int{1: 5}, nil)

	if !f.store.AddProduct(context.Background(), 1) {
		t.Fatal("AddProduct returned false")
	}

	want := []LineItem{item(1, 1)}
	if diff := cmp.Diff(want, f.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, f.persisted(t)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if len(f.notes.got) != 0 {
		t.Errorf("unexpected notifications: %v", f.notes.got)
	}
}

func TestAddProductIncrementsExisting(t *testing.T) {
	f := newFixture(t, map[int]int{1: 3}, []LineItem{item(1, 2)})

	if !f.store.AddProduct(context.Background(), 1) {
		t.Fatal("AddProduct returned false")
	}
	want := []LineItem{item(1, 3)}
	if diff := cmp.Diff(want, f.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, f.persisted(t)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"stock"}, f.api.calls); diff != "" {
		t.Errorf("existing item should only look up stock (-want +got):\n%s", diff)
	}
}

func TestAddProductOutOfStock(t *testing.T) {
	initial := []LineItem{item(1, 5)}
	f := newFixture(t, map[int]int{1: 5}, initial)

	if f.store.AddProduct(context.Background(), 1) {
		t.Fatal("AddProduct returned true")
	}
	if diff := cmp.Diff(initial, f.store.Cart()); diff != "" {
		t.Errorf("cart changed (-want +got):\n%s", diff)
	}
	if f.slot.writes != 0 {
		t.Errorf("slot written %d times", f.slot.writes)
	}
	want := []Notification{{Level: LevelWarning, Topic: "cart", Message: MsgOutOfStock, ProductID: 1}}
	if diff := cmp.Diff(want, f.notes.got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestAddProductZeroStockIsSilent(t *testing.T) {
	f := newFixture(t, map[int]int{7: 0}, nil)

	if f.store.AddProduct(context.Background(), 7) {
		t.Fatal("AddProduct returned true")
	}
	if got := f.store.Cart(); len(got) != 0 {
		t.Errorf("cart = %v, want empty", got)
	}
	if len(f.notes.got) != 0 {
		t.Errorf("unexpected notifications: %v", f.notes.got)
	}
	if f.slot.writes != 0 {
		t.Errorf("slot written %d times", f.slot.writes)
	}
}

func TestAddProductLookupFailure(t *testing.T) {
	f := newFixture(t, map[int]int{1: 5}, nil)
	f.api.stockErr = errors.New("connection refused")

	if f.store.AddProduct(context.Background(), 1) {
		t.Fatal("AddProduct returned true")
	}
	if got := f.store.Cart(); len(got) != 0 {
		t.Errorf("cart = %v, want empty", got)
	}
	want := []Notification{{Level: LevelError, Topic: "cart", Message: MsgAddFailed, ProductID: 1}}
	if diff := cmp.Diff(want, f.notes.got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestAddProductProductLookupFailure(t *testing.T) {
	initial := []LineItem{item(1, 1)}
	f := newFixture(t, map[int]int{1: 5, 2: 5}, initial)
	f.api.productErr = errors.New("502 bad gateway")

	if f.store.AddProduct(context.Background(), 2) {
		t.Fatal("AddProduct returned true")
	}
	if diff := cmp.Diff([]string{"stock", "product"}, f.api.calls); diff != "" {
		t.Errorf("remote calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(initial, f.store.Cart()); diff != "" {
		t.Errorf("cart changed (-want +got):\n%s", diff)
	}
	if f.slot.writes != 0 {
		t.Errorf("slot written %d times", f.slot.writes)
	}
	want := []Notification{{Level: LevelError, Topic: "cart", Message: MsgAddFailed, ProductID: 2}}
	if diff := cmp.Diff(want, f.notes.got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestExtraProductFieldsSurvive(t *testing.T) {
	f := newFixture(t, map[int]int{1: 5, 2: 5}, nil)
	f.slot.data[StorageKey] = `[{"id":1,"title":"T","price":10,"image":"i","amount":2,"brand":"Nike"}]`
	f.api.products[2] = Product{ID: 2, Title: "U", Extra: map[string]json.RawMessage{
		"color":  json.RawMessage(`"blue"`),
		"amount": json.RawMessage(`40`),
	}}
	f.store = New(context.Background(), Deps{Stock: f.api, Products: f.api, Storage: f.slot, Logger: quietLogger()})

	f.store.AddProduct(context.Background(), 1)
	f.store.AddProduct(context.Background(), 2)

	want := `[{"id":1,"title":"T","price":10,"image":"i","amount":3,"brand":"Nike"},` +
		`{"id":2,"title":"U","price":0,"image":"","amount":1,"color":"blue"}]`
	if got := f.slot.data[StorageKey]; got != want {
		t.Errorf("snapshot = %s\nwant       %s", got, want)
	}

	reloaded := New(context.Background(), Deps{Storage: f.slot, Logger: quietLogger()})
	if diff := cmp.Diff(f.store.Cart(), reloaded.Cart()); diff != "" {
		t.Errorf("reloaded cart mismatch (-want +got):\n%s", diff)
	}
}

func TestAddProductUsesRequestedID(t *testing.T) {
	f := newFixture(t, map[int]int{4: 2}, nil)
	f.api.products[4] = Product{ID: 99, Title: "Mismatched"}

	f.store.AddProduct(context.Background(), 4)
	f.store.AddProduct(context.Background(), 4)

	got := f.store.Cart()
	if len(got) != 1 || got[0].ID != 4 || got[0].Amount != 2 {
		t.Errorf("cart = %+v, want one item id 4 amount 2", got)
	}
}

func TestPersistFailureLeavesCartUnchanged(t *testing.T) {
	initial := []LineItem{item(1, 1), item(2, 1)}
	f := newFixture(t, map[int]int{1: 10, 2: 10, 3: 10}, initial)
	f.slot.setErr = errors.New("quota exceeded")
	ctx := context.Background()

	if f.store.AddProduct(ctx, 1) || f.store.AddProduct(ctx, 3) {
		t.Error("AddProduct reported a change")
	}
	if f.store.RemoveProduct(ctx, 2) {
		t.Error("RemoveProduct reported a change")
	}
	if f.store.UpdateProductAmount(ctx, UpdateProductAmount{ProductID: 1, Amount: 4}) {
		t.Error("UpdateProductAmount reported a change")
	}
	if diff := cmp.Diff(initial, f.store.Cart()); diff != "" {
		t.Errorf("cart changed (-want +got):\n%s", diff)
	}

	var msgs []string
	for _, n := range f.notes.got {
		msgs = append(msgs, n.Message)
	}
	want := []string{MsgAddFailed, MsgAddFailed, MsgRemoveFailed, MsgUpdateFailed}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestRemoveProduct(t *testing.T) {
	f := newFixture(t, nil, []LineItem{item(1, 1), item(2, 3), item(3, 2)})

	if !f.store.RemoveProduct(context.Background(), 2) {
		t.Fatal("RemoveProduct returned false")
	}
	want := []LineItem{item(1, 1), item(3, 2)}
	if diff := cmp.Diff(want, f.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, f.persisted(t)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveProductMissing(t *testing.T) {
	initial := []LineItem{item(1, 1)}
	f := newFixture(t, nil, initial)

	if f.store.RemoveProduct(context.Background(), 9) {
		t.Fatal("RemoveProduct returned true")
	}
	if diff := cmp.Diff(initial, f.store.Cart()); diff != "" {
		t.Errorf("cart changed (-want +got):\n%s", diff)
	}
	want := []Notification{{Level: LevelError, Topic: "cart", Message: MsgRemoveFailed, ProductID: 9}}
	if diff := cmp.Diff(want, f.notes.got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestUpdateProductAmount(t *testing.T) {
	tests := []struct {
		name      string
		stock     map[int]int
		initial   []LineItem
		req       UpdateProductAmount
		apiErr    error
		wantOK    bool
		wantCart  []LineItem
		wantNotes []string
	}{
		{
			name:     "sets exact amount",
			stock:    map[int]int{1: 10},
			initial:  []LineItem{item(1, 2)},
			req:      UpdateProductAmount{ProductID: 1, Amount: 7},
			wantOK:   true,
			wantCart: []LineItem{item(1, 7)},
		},
		{
			name:     "amount equal to stock",
			stock:    map[int]int{1: 4},
			initial:  []LineItem{item(1, 1)},
			req:      UpdateProductAmount{ProductID: 1, Amount: 4},
			wantOK:   true,
			wantCart: []LineItem{item(1, 4)},
		},
		{
			name:     "zero is ignored",
			stock:    map[int]int{1: 10},
			initial:  []LineItem{item(1, 2)},
			req:      UpdateProductAmount{ProductID: 1, Amount: 0},
			wantCart: []LineItem{item(1, 2)},
		},
		{
			name:     "negative is ignored",
			stock:    map[int]int{1: 10},
			initial:  []LineItem{item(1, 2)},
			req:      UpdateProductAmount{ProductID: 1, Amount: -3},
			wantCart: []LineItem{item(1, 2)},
		},
		{
			name:      "above stock",
			stock:     map[int]int{1: 3},
			initial:   []LineItem{item(1, 2)},
			req:       UpdateProductAmount{ProductID: 1, Amount: 4},
			wantCart:  []LineItem{item(1, 2)},
			wantNotes: []string{MsgOutOfStock},
		},
		{
			name:      "not in cart",
			stock:     map[int]int{1: 3, 2: 5},
			initial:   []LineItem{item(1, 2)},
			req:       UpdateProductAmount{ProductID: 2, Amount: 1},
			wantCart:  []LineItem{item(1, 2)},
			wantNotes: []string{MsgUpdateFailed},
		},
		{
			name:      "stock lookup fails",
			stock:     map[int]int{1: 3},
			initial:   []LineItem{item(1, 2)},
			req:       UpdateProductAmount{ProductID: 1, Amount: 3},
			apiErr:    errors.New("timeout"),
			wantCart:  []LineItem{item(1, 2)},
			wantNotes: []string{MsgUpdateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.stock, tt.initial)
			f.api.stockErr = tt.apiErr

			if got := f.store.UpdateProductAmount(context.Background(), tt.req); got != tt.wantOK {
				t.Errorf("UpdateProductAmount = %v, want %v", got, tt.wantOK)
			}
			if diff := cmp.Diff(tt.wantCart, f.store.Cart()); diff != "" {
				t.Errorf("cart mismatch (-want +got):\n%s", diff)
			}

			var notes []string
			for _, n := range f.notes.got {
				notes = append(notes, n.Message)
			}
			if diff := cmp.Diff(tt.wantNotes, notes); diff != "" {
				t.Errorf("notifications (-want +got):\n%s", diff)
			}

			if tt.wantOK {
				if diff := cmp.Diff(tt.wantCart, f.persisted(t)); diff != "" {
					t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
				}
			} else if f.slot.writes != 0 {
				t.Errorf("slot written %d times", f.slot.writes)
			}
		})
	}
}

func TestUpdateProductAmountIgnoredSkipsLookup(t *testing.T) {
	f := newFixture(t, map[int]int{1: 10}, []LineItem{item(1, 2)})

	f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 1, Amount: 0})
	if len(f.api.calls) != 0 {
		t.Errorf("remote calls = %v, want none", f.api.calls)
	}
}

func TestHydrate(t *testing.T) {
	tests := []struct {
		name string
		slot func(*memSlot)
		want []LineItem
	}{
		{
			name: "absent",
			slot: func(*memSlot) {},
			want: []LineItem{},
		},
		{
			name: "unparsable",
			slot: func(m *memSlot) { m.data[StorageKey] = "{not json" },
			want: []LineItem{},
		},
		{
			name: "read error",
			slot: func(m *memSlot) { m.getErr = errors.New("disk gone") },
			want: []LineItem{},
		},
		{
			name: "drops invalid entries",
			slot: func(m *memSlot) {
				m.data[StorageKey] = `[{"id":1,"amount":2},{"id":2,"amount":0},{"id":1,"amount":5},{"id":3,"amount":1}]`
			},
			want: []LineItem{
				{Product: Product{ID: 1}, Amount: 2},
				{Product: Product{ID: 3}, Amount: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := newMemSlot()
			tt.slot(slot)
			s := New(context.Background(), Deps{Storage: slot, Logger: quietLogger()})
			if diff := cmp.Diff(tt.want, s.Cart()); diff != "" {
				t.Errorf("cart mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t, map[int]int{1: 5, 2: 5, 3: 5}, nil)
	ctx := context.Background()
	f.store.AddProduct(ctx, 3)
	f.store.AddProduct(ctx, 1)
	f.store.AddProduct(ctx, 1)
	f.store.AddProduct(ctx, 2)

	reloaded := New(ctx, Deps{Storage: f.slot, Logger: quietLogger()})
	if diff := cmp.Diff(f.store.Cart(), reloaded.Cart()); diff != "" {
		t.Errorf("reloaded cart mismatch (-want +got):\n%s", diff)
	}
	if got := reloaded.Cart(); got[0].ID != 3 || got[1].ID != 1 || got[2].ID != 2 {
		t.Errorf("insertion order not preserved: %+v", got)
	}
}

func TestEncodeSnapshotEmpty(t *testing.T) {
	got, err := EncodeSnapshot(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("EncodeSnapshot(nil) = %q, want []", got)
	}
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t, map[int]int{1: 100}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.store.AddProduct(context.Background(), 1)
		}()
	}
	wg.Wait()

	got := f.store.Cart()
	if len(got) != 1 || got[0].Amount != 20 {
		t.Errorf("cart = %+v, want one item with amount 20", got)
	}
}
