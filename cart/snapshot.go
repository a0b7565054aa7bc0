// rocketshoes-cartservice/cart/snapshot.go

package cart

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

var (
	productFields  = fieldSet("id", "title", "price", "image")
	lineItemFields = fieldSet("id", "title", "price", "image", "amount")
)

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// plainProduct and plainLineItem carry the known fields without the custom
// JSON methods.
type plainProduct Product

type plainLineItem struct {
	plainProduct
	Amount int `json:"amount"`
}

// MarshalJSON writes the known fields followed by Extra.
func (p Product) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainProduct(p), p.Extra, productFields)
}

// UnmarshalJSON reads the known fields and keeps the rest in Extra.
func (p *Product) UnmarshalJSON(data []byte) error {
	var known plainProduct
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	extra, err := extraFields(data, productFields)
	if err != nil {
		return err
	}
	*p = Product(known)
	p.Extra = extra
	return nil
}

// MarshalJSON writes the product fields, the amount and the product's Extra.
func (li LineItem) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainLineItem{
		plainProduct: plainProduct(li.Product),
		Amount:       li.Amount,
	}, li.Extra, lineItemFields)
}

// UnmarshalJSON reads a line item; unknown fields land in Product.Extra.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var known plainLineItem
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	extra, err := extraFields(data, lineItemFields)
	if err != nil {
		return err
	}
	li.Product = Product(known.plainProduct)
	li.Product.Extra = extra
	li.Amount = known.Amount
	return nil
}

// extraFields returns the members of the JSON object data not named in
// known, or nil when there are none.
func extraFields(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

// marshalWithExtra encodes v, a struct, and appends the extra members in key
// order. Extra keys shadowing a reserved field are skipped.
func marshalWithExtra(v interface{}, extra map[string]json.RawMessage, reserved map[string]struct{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if _, ok := reserved[k]; !ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return b, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		if len(extra[k]) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, extra[k]); err != nil {
			return nil, errors.Wrapf(err, "extra field %q", k)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeSnapshot serializes the cart as a JSON array of line items. An empty
// cart encodes as "[]", never "null".
func EncodeSnapshot(items []LineItem) (string, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", errors.Wrap(err, "encode cart snapshot")
	}
	return string(b), nil
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot. Entries with an
// amount below one or a repeated product id are dropped; the number of
// dropped entries is returned so callers can report it.
func DecodeSnapshot(data string) ([]LineItem, int, error) {
	var raw []LineItem
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, 0, errors.Wrap(err, "decode cart snapshot")
	}

	items := make([]LineItem, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	dropped := 0
	for _, item := range raw {
		if item.Amount < 1 {
			dropped++
			continue
		}
		if _, dup := seen[item.ID]; dup {
			dropped++
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items, dropped, nil
}
