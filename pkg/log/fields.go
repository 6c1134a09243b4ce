package log

import "time"

// Field is a typed key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a field from any value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field rendered as a string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Any creates a field from an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates an "error" field; a nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component creates the standard component field.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation creates the standard operation field.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }
