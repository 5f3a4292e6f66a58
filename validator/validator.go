package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Validator checks one constraint on a struct value
type Validator interface {
	Validate(data interface{}) error
}

// RangeValidator checks that a numeric or duration field lies in [Min, Max]
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate implements Validator
func (rv *RangeValidator) Validate(data interface{}) error {
	field, err := lookupField(data, rv.Field)
	if err != nil {
		return err
	}

	var value float64
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		value = field.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value = float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value = float64(field.Uint())
	default:
		return fmt.Errorf("field %s is not numeric", rv.Field)
	}

	if value < rv.Min || value > rv.Max {
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			return fmt.Errorf("field %s value %s is not in range [%s, %s]", rv.Field,
				time.Duration(value), time.Duration(rv.Min), time.Duration(rv.Max))
		}
		return fmt.Errorf("field %s value %g is not in range [%g, %g]", rv.Field, value, rv.Min, rv.Max)
	}

	return nil
}

// NotEmptyValidator checks that a string field has non-blank content
type NotEmptyValidator struct {
	Field string
}

// Validate implements Validator
func (nv *NotEmptyValidator) Validate(data interface{}) error {
	field, err := lookupField(data, nv.Field)
	if err != nil {
		return err
	}
	if field.Kind() != reflect.String {
		return fmt.Errorf("field %s is not a string", nv.Field)
	}
	if strings.TrimSpace(field.String()) == "" {
		return fmt.Errorf("field %s must not be empty", nv.Field)
	}
	return nil
}

// ValidateAll runs every validator and joins the failures
func ValidateAll(data interface{}, validators ...Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Validate(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func lookupField(data interface{}, name string) (reflect.Value, error) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("data must be a struct")
	}

	field := v.FieldByName(name)
	if !field.IsValid() {
		return reflect.Value{}, fmt.Errorf("field %s does not exist", name)
	}
	return field, nil
}
