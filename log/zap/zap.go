// Package zap adapts a *zap.Logger to the cacheaside Logger interface.
package zap

import (
	"github.com/unkn0wn-root/cacheaside"
	"go.uber.org/zap"
)

var _ cacheaside.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger { return Logger{L: l} }

func (z Logger) Debug(msg string, f cacheaside.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f cacheaside.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f cacheaside.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f cacheaside.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f cacheaside.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
