// Package zap adapts a *zap.Logger to shelfcache.Logger.
package zap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/shelfcache"
)

var _ shelfcache.Logger = Logger{}

// Logger forwards repository logs to L. Fields are emitted in key order.
type Logger struct{ L *zap.Logger }

// New returns a Logger that tags every entry with component=shelfcache.
func New(l *zap.Logger) Logger {
	return Logger{L: l.With(zap.String("component", "shelfcache"))}
}

func (z Logger) Debug(msg string, f shelfcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f shelfcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f shelfcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f shelfcache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f shelfcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
