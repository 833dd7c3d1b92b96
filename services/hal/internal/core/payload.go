package core

import "envmon-go/errcode"

// As[T] asserts a payload to the concrete value type T.
// A pointer to T is dereferenced. A nil payload is treated as the zero
// value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	switch t := v.(type) {
	case T:
		return t, ""
	case *T:
		if t == nil {
			return zero, errcode.InvalidPayload
		}
		return *t, ""
	}
	return zero, errcode.InvalidPayload
}
