package logger

import (
	"crypto/rand"
	"encoding/hex"
)

// Logger is the minimal structured logging surface the decision engine
// needs. Implementations take alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation id per evaluation. It must be cheap
// and safe for concurrent calls.
type TraceIDFunc func() string

// RandomTraceID is the default TraceIDFunc: 16 random bytes, hex encoded.
func RandomTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "trace-unavailable"
	}
	return hex.EncodeToString(b[:])
}
