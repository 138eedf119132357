package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// ConsoleOutput writes formatted entries to os.Stderr for Warn and above,
// os.Stdout otherwise.
type ConsoleOutput struct{}

// NewConsoleOutput constructs a ConsoleOutput.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

func (c *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	w := io.Writer(os.Stdout)
	if entry.Level >= WarnLevel {
		w = os.Stderr
	}
	_, err := fmt.Fprintln(w, string(formatted))
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

// WriterOutput writes formatted entries to an arbitrary io.Writer.
type WriterOutput struct {
	W io.Writer
}

func (w *WriterOutput) Write(_ *Entry, formatted []byte) error {
	_, err := fmt.Fprintln(w.W, string(formatted))
	return err
}

func (w *WriterOutput) Close() error {
	if c, ok := w.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// stdLogWriter adapts a *BaseLogger to io.Writer so it can back a stdlib
// *log.Logger.
type stdLogWriter struct {
	logger *BaseLogger
	level  Level
}

func (s stdLogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && (msg[len(msg)-1] == '\n' || msg[len(msg)-1] == '\r') {
		msg = msg[:len(msg)-1]
	}
	s.logger.log(s.level, msg)
	return len(p), nil
}

// ToStdLogger returns a stdlib *log.Logger that forwards lines to logger at
// the given level.
func ToStdLogger(logger Logger, level Level) *log.Logger {
	bl, ok := logger.(*BaseLogger)
	if !ok {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(stdLogWriter{logger: bl, level: level}, "", 0)
}

// RedirectStdLog routes the standard library's default logger (used by
// dependencies such as Pebble) through logger at InfoLevel.
func RedirectStdLog(logger Logger) {
	log.SetOutput(stdLogWriter{logger: mustBase(logger), level: InfoLevel})
	log.SetFlags(0)
}

func mustBase(logger Logger) *BaseLogger {
	if bl, ok := logger.(*BaseLogger); ok {
		return bl
	}
	bl := NewLogger().(*BaseLogger)
	return bl
}
