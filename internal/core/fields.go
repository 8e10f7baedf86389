package core

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

const fieldTag = "field"

type dealField struct {
	name  string
	index int
}

var dealFields = collectDealFields()

func collectDealFields() []dealField {
	t := reflect.TypeOf(Deal{})
	fields := make([]dealField, 0, t.NumField())
	for i := range t.NumField() {
		name := t.Field(i).Tag.Get(fieldTag)
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, dealField{name: name, index: i})
	}
	return fields
}

// DealFields returns the ordered attribute names of a Deal.
func DealFields() []string {
	names := make([]string, len(dealFields))
	for i, f := range dealFields {
		names[i] = f.name
	}
	return names
}

// FieldValues renders the deal's attributes in DealFields order.
func (d Deal) FieldValues() []string {
	v := reflect.ValueOf(d)
	out := make([]string, len(dealFields))
	for i, f := range dealFields {
		out[i] = formatField(v.Field(f.index).Interface())
	}
	return out
}

// FieldValue returns a single attribute by name.
func (d Deal) FieldValue(name string) (string, bool) {
	i := slices.IndexFunc(dealFields, func(f dealField) bool { return f.name == name })
	if i < 0 {
		return "", false
	}
	return formatField(reflect.ValueOf(d).Field(dealFields[i].index).Interface()), true
}

func formatField(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case decimal.Decimal:
		return x.StringFixed(2)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
