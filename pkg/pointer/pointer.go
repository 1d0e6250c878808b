package pointer

// To returns a pointer to the provided value
func To[T any](value T) *T {
	return &value
}

// Copy returns a pointer to a copy of the pointed to value, or nil
func Copy[T any](value *T) *T {
	if value == nil {
		return nil
	}
	return To(*value)
}

// OrDefault returns the pointer if not nil, otherwise a pointer to the default value
func OrDefault[T any](value *T, defaultValue T) *T {
	if value != nil {
		return value
	}
	return &defaultValue
}

// IfValid returns a pointer to the value if it's valid, otherwise nil
func IfValid[T any](valid bool, value T) *T {
	if valid {
		return &value
	}
	return nil
}

// ValueOrDefault dereferences the pointer, or returns the default value if
// it's nil
func ValueOrDefault[T any](value *T, defaultValue T) T {
	if value == nil {
		return defaultValue
	}
	return *value
}
