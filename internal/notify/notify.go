// Package notify provides the three-level user notification sinks the
// bridge routes failed responses to.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/atu-ide/bizbridge/internal/logging"
)

// Notifier shows a message to the user at one of three levels
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// Console prints notifications to a terminal
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool

	infoColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
}

// NewConsole writes to out, or stderr when out is nil
func NewConsole(out io.Writer, noColor bool) *Console {
	if out == nil {
		out = os.Stderr
	}
	c := &Console{
		out:        out,
		noColor:    noColor,
		infoColor:  color.New(color.FgCyan),
		warnColor:  color.New(color.FgYellow, color.Bold),
		errorColor: color.New(color.FgRed, color.Bold),
	}
	if noColor {
		c.infoColor.DisableColor()
		c.warnColor.DisableColor()
		c.errorColor.DisableColor()
	}
	return c
}

func (c *Console) print(tag string, col *color.Color, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprint(c.out, tag)
	fmt.Fprintln(c.out, msg)
}

func (c *Console) Info(msg string)  { c.print("ℹ Info: ", c.infoColor, msg) }
func (c *Console) Warn(msg string)  { c.print("⚠ Warning: ", c.warnColor, msg) }
func (c *Console) Error(msg string) { c.print("✗ Error: ", c.errorColor, msg) }

// Log records notifications in the zerolog log instead of showing them
type Log struct {
	Logger *zerolog.Logger // nil means the package logger
}

func (l Log) logger() *zerolog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return &logging.Logger
}

func (l Log) Info(msg string)  { l.logger().Info().Str("notify", "info").Msg(msg) }
func (l Log) Warn(msg string)  { l.logger().Warn().Str("notify", "warn").Msg(msg) }
func (l Log) Error(msg string) { l.logger().Error().Str("notify", "error").Msg(msg) }

// Multi fans every notification out to all sinks in order
type Multi []Notifier

func (m Multi) Info(msg string) {
	for _, n := range m {
		n.Info(msg)
	}
}

func (m Multi) Warn(msg string) {
	for _, n := range m {
		n.Warn(msg)
	}
}

func (m Multi) Error(msg string) {
	for _, n := range m {
		n.Error(msg)
	}
}
