package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// missingValue stands in for the value of a trailing key with no pair.
const missingValue = "(MISSING)"

// toFields turns loosely typed key/value arguments into zap fields.
// A bare zap.Field or error is accepted in place of a pair. Non-string keys
// are formatted with fmt.Sprint and a trailing key gets missingValue.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			continue
		case error:
			fields = append(fields, zap.Error(a))
			continue
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 == len(args) {
			fields = append(fields, zap.String(key, missingValue))
			break
		}
		i++
		fields = append(fields, typedField(key, args[i]))
	}
	return fields
}

// typedField picks the zap constructor matching v so encoders avoid reflection.
func typedField(key string, v any) zap.Field {
	switch v := v.(type) {
	case string:
		return zap.String(key, v)
	case bool:
		return zap.Bool(key, v)
	case int:
		return zap.Int(key, v)
	case int32:
		return zap.Int32(key, v)
	case int64:
		return zap.Int64(key, v)
	case uint:
		return zap.Uint(key, v)
	case uint8:
		return zap.Uint8(key, v)
	case uint16:
		return zap.Uint16(key, v)
	case uint32:
		return zap.Uint32(key, v)
	case uint64:
		return zap.Uint64(key, v)
	case float64:
		return zap.Float64(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case []byte:
		return zap.Binary(key, v)
	case error:
		return zap.NamedError(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
