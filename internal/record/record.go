// Package record defines the movie record persisted by the store.
//
// A record carries three independently settable text fields. Any subset may
// be empty; a freshly scanned record usually has exactly one of them set.
// Identity is assigned by the store and never derived from field values.
package record

import "fmt"

// Record is a single hoarded movie.
type Record struct {
	// ID is the store-assigned identity. Stable across updates.
	ID string `json:"id"`

	// Code is a scanned barcode value.
	Code string `json:"code"`

	// TitleLocalized is the localized display title.
	TitleLocalized string `json:"title_localized"`

	// TitleOriginal is the original-language title.
	TitleOriginal string `json:"title_original"`
}

// DisplayTitle returns the label used when listing records:
// the code if set, otherwise the localized title, otherwise the original title.
func (r Record) DisplayTitle() string {
	if r.Code != "" {
		return r.Code
	}
	if r.TitleLocalized != "" {
		return r.TitleLocalized
	}
	return r.TitleOriginal
}

// Field names one of the three record fields.
type Field int

const (
	// FieldCode is the barcode field.
	FieldCode Field = iota + 1
	// FieldTitleLocalized is the localized title field.
	FieldTitleLocalized
	// FieldTitleOriginal is the original title field.
	FieldTitleOriginal
)

// String returns the short name used on the command line and in scenarios.
func (f Field) String() string {
	switch f {
	case FieldCode:
		return "code"
	case FieldTitleLocalized:
		return "localized"
	case FieldTitleOriginal:
		return "original"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// Fields lists the valid field names in declaration order.
var Fields = []string{"code", "localized", "original"}

// ParseField converts a short name back into a Field.
func ParseField(name string) (Field, error) {
	switch name {
	case "code":
		return FieldCode, nil
	case "localized":
		return FieldTitleLocalized, nil
	case "original":
		return FieldTitleOriginal, nil
	default:
		return 0, fmt.Errorf("unknown field %q: must be one of %v", name, Fields)
	}
}

// With returns a record with only the given field set to value.
func With(f Field, value string) (Record, error) {
	var r Record
	switch f {
	case FieldCode:
		r.Code = value
	case FieldTitleLocalized:
		r.TitleLocalized = value
	case FieldTitleOriginal:
		r.TitleOriginal = value
	default:
		return Record{}, fmt.Errorf("unknown field %v", f)
	}
	return r, nil
}
