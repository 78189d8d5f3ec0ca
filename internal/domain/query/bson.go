package query

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToBSON lowers a Value into the driver's native representation: objects
// become bson.D (order kept), arrays bson.A, integral numbers int64 and the
// rest float64. Single-key Extended JSON wrappers ($oid, $date, $numberLong,
// $numberDecimal) are converted to their BSON types.
func (v Value) ToBSON() (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindString:
		return v.str, nil
	case KindNumber:
		return lowerNumber(v.num.String())
	case KindArray:
		arr := make(bson.A, 0, len(v.items))
		for i, item := range v.items {
			lowered, err := item.ToBSON()
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, lowered)
		}
		return arr, nil
	case KindObject:
		if len(v.fields) == 1 {
			if lowered, ok, err := lowerExtended(v.fields[0]); ok || err != nil {
				return lowered, err
			}
		}
		doc := make(bson.D, 0, len(v.fields))
		for _, f := range v.fields {
			lowered, err := f.Value.ToBSON()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			doc = append(doc, bson.E{Key: f.Key, Value: lowered})
		}
		return doc, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// ToDocument lowers an object Value into a bson.D.
func (v Value) ToDocument() (bson.D, error) {
	if v.kind != KindObject {
		return nil, fmt.Errorf("expected object, got %s", v.kind)
	}
	lowered, err := v.ToBSON()
	if err != nil {
		return nil, err
	}
	doc, ok := lowered.(bson.D)
	if !ok {
		return nil, fmt.Errorf("document root cannot be an extended JSON wrapper")
	}
	return doc, nil
}

func lowerNumber(lit string) (interface{}, error) {
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", lit)
	}
	return f, nil
}

func lowerExtended(f Field) (interface{}, bool, error) {
	switch f.Key {
	case "$oid":
		if f.Value.kind != KindString {
			return nil, true, fmt.Errorf("$oid must be a string")
		}
		oid, err := primitive.ObjectIDFromHex(f.Value.str)
		if err != nil {
			return nil, true, fmt.Errorf("$oid: %w", err)
		}
		return oid, true, nil
	case "$date":
		switch f.Value.kind {
		case KindString:
			t, err := time.Parse(time.RFC3339Nano, f.Value.str)
			if err != nil {
				return nil, true, fmt.Errorf("$date: %w", err)
			}
			return primitive.NewDateTimeFromTime(t), true, nil
		case KindNumber:
			ms, err := strconv.ParseInt(f.Value.num.String(), 10, 64)
			if err != nil {
				return nil, true, fmt.Errorf("$date: milliseconds must be an integer")
			}
			return primitive.DateTime(ms), true, nil
		}
		return nil, true, fmt.Errorf("$date must be a string or integer")
	case "$numberLong":
		if f.Value.kind != KindString {
			return nil, true, fmt.Errorf("$numberLong must be a string")
		}
		n, err := strconv.ParseInt(f.Value.str, 10, 64)
		if err != nil {
			return nil, true, fmt.Errorf("$numberLong: %w", err)
		}
		return n, true, nil
	case "$numberDecimal":
		if f.Value.kind != KindString {
			return nil, true, fmt.Errorf("$numberDecimal must be a string")
		}
		d, err := primitive.ParseDecimal128(f.Value.str)
		if err != nil {
			return nil, true, fmt.Errorf("$numberDecimal: %w", err)
		}
		return d, true, nil
	}
	return nil, false, nil
}
