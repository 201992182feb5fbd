package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

type Logger struct {
	slog     *slog.Logger
	scope    string
	file     string
	function string
}

func New(scope string) Logger {
	return Logger{
		slog:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		scope: scope,
	}
}

func (l Logger) File(file string) Logger {
	l.file = file
	return l
}

func (l Logger) Function(function string) Logger {
	l.function = function
	return l
}

func (l Logger) attrs(args ...any) []any {
	out := []any{"scope", l.scope}
	if l.file != "" {
		out = append(out, "file", l.file)
	}
	if l.function != "" {
		out = append(out, "function", l.function)
	}
	return append(out, args...)
}

func (l Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, l.attrs(args...)...)
}

func (l Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, l.attrs(args...)...)
}

func (l Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, l.attrs(args...)...)
}

// Error logs msg and returns it as an error.
func (l Logger) Error(msg string, args ...any) error {
	l.slog.Error(msg, l.attrs(args...)...)
	return errors.New(msg)
}

// Err logs msg with the underlying error and returns a wrapped error.
func (l Logger) Err(msg string, err error, args ...any) error {
	l.slog.Error(msg, l.attrs(append(args, "error", err)...)...)
	return fmt.Errorf("%s: %w", msg, err)
}

func (l Logger) ErrMsg(msg string) error {
	l.slog.Error(msg, l.attrs()...)
	return errors.New(msg)
}

// Er logs msg with the underlying error without returning it.
func (l Logger) Er(msg string, err error, args ...any) {
	l.slog.Error(msg, l.attrs(append(args, "error", err)...)...)
}

func (l Logger) ErMsg(msg string) {
	l.slog.Error(msg, l.attrs()...)
}
