// Package bitfield packs and unpacks struct fields into integers using a
// `bitfield:"<bits>"` struct tag. Adapted from the teacher's
// src/bitfield/bitfield.go (itself a simplified golang.org/x/text bitfield
// generator); this core uses it to encode the L3 page-table-entry
// attribute word (internal/vm), and it defines a page-frame metadata word
// (PageFlags) that only this package's tests pack; it does not describe the
// raw trap-frame layout,
// which is fixed-offset and consumed directly by assembly.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config controls the packed integer's width.
type Config struct {
	// NumBits bounds the total bits the tagged fields may occupy; 0 means
	// unbounded (checked only against the return type's width).
	NumBits uint
}

type fieldSpec struct {
	index int
	bits  uint
}

func specsOf(t reflect.Type) ([]fieldSpec, error) {
	specs := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("bitfield")
		if tag == "" {
			continue
		}
		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return nil, fmt.Errorf("bitfield: invalid tag %q on field %s: %w", tag, t.Field(i).Name, err)
		}
		if bits == 0 {
			continue
		}
		specs = append(specs, fieldSpec{index: i, bits: bits})
	}
	return specs, nil
}

// Pack packs the tagged fields of struct x, in declaration order, into a
// uint64 LSB-first. x may be a struct or pointer to struct.
func Pack(x interface{}, c *Config) (uint64, error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack expected struct, got %v", v.Kind())
	}

	specs, err := specsOf(v.Type())
	if err != nil {
		return 0, err
	}

	var packed uint64
	var offset uint
	for _, spec := range specs {
		fv := v.Field(spec.index)
		var bits uint64
		switch fv.Kind() {
		case reflect.Bool:
			if fv.Bool() {
				bits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			bits = fv.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := fv.Int()
			if n < 0 {
				return 0, fmt.Errorf("bitfield: Pack negative value %d for field %s", n, v.Type().Field(spec.index).Name)
			}
			bits = uint64(n)
		default:
			return 0, fmt.Errorf("bitfield: Pack unsupported kind %v for field %s", fv.Kind(), v.Type().Field(spec.index).Name)
		}

		maxVal := uint64(1)<<spec.bits - 1
		if bits > maxVal {
			return 0, fmt.Errorf("bitfield: Pack value %d exceeds %d bits for field %s", bits, spec.bits, v.Type().Field(spec.index).Name)
		}
		packed |= bits << offset
		offset += spec.bits
	}

	if c.NumBits > 0 && offset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack total bits %d exceeds NumBits %d", offset, c.NumBits)
	}
	return packed, nil
}

// Unpack is Pack's inverse: it fills the tagged fields of the struct
// pointed to by dst from packed, in the same declaration order Pack used.
func Unpack(dst interface{}, packed uint64) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack expected pointer to struct, got %v", v.Kind())
	}
	v = v.Elem()

	specs, err := specsOf(v.Type())
	if err != nil {
		return err
	}

	var offset uint
	for _, spec := range specs {
		mask := uint64(1)<<spec.bits - 1
		bits := (packed >> offset) & mask
		offset += spec.bits

		fv := v.Field(spec.index)
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(bits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(bits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(bits))
		default:
			return fmt.Errorf("bitfield: Unpack unsupported kind %v for field %s", fv.Kind(), v.Type().Field(spec.index).Name)
		}
	}
	return nil
}
