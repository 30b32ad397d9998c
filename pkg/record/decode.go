package record

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decoder converts a raw document into a typed record.
type Decoder[T any] func(id string, fields map[string]interface{}) (T, error)

func decode(id string, fields map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timestampHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("record: decode %q: %w", id, err)
	}
	return nil
}

// DecodeOrder decodes a successOrders document.
func DecodeOrder(id string, fields map[string]interface{}) (Order, error) {
	var o Order
	if err := decode(id, fields, &o); err != nil {
		return Order{}, err
	}
	o.ID = id
	if o.Status == "" {
		o.Status = StatusProcessing
	}
	return o, nil
}

// DecodeQuery decodes a contact form document, filling display defaults.
func DecodeQuery(id string, fields map[string]interface{}) (Query, error) {
	var q Query
	if err := decode(id, fields, &q); err != nil {
		return Query{}, err
	}
	q.ID = id
	return q.withDefaults(), nil
}

// DecodeProduct decodes a products document.
func DecodeProduct(id string, fields map[string]interface{}) (Product, error) {
	var p Product
	if err := decode(id, fields, &p); err != nil {
		return Product{}, err
	}
	p.ID = id
	return p, nil
}

// DecodeProfile decodes a users document.
func DecodeProfile(id string, fields map[string]interface{}) (Profile, error) {
	var p Profile
	if err := decode(id, fields, &p); err != nil {
		return Profile{}, err
	}
	p.UID = id
	return p, nil
}
