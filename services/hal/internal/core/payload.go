package core

import (
	"irlearn-go/errcode"
	"irlearn-go/services/hal/internal/util"
)

// Decode accepts a typed value, a JSON object decoded into map[string]any,
// or raw JSON bytes/string, and fills a T. A nil payload yields the zero T.
func Decode[T any](v any) (T, errcode.Code) {
	var out T
	if v == nil {
		return out, ""
	}
	if t, ok := v.(T); ok {
		return t, ""
	}
	if err := util.DecodeJSON(v, &out); err != nil {
		return out, errcode.InvalidPayload
	}
	return out, ""
}
