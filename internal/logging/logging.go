// Package logging provides structured, colored console logging with a
// fan-out subscription channel, in the style of redb-open's pkg/logger,
// built on github.com/fatih/color instead of raw ANSI escapes.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

const componentWidth = 16

// Entry is a single emitted log line, also delivered to any subscriber
// channel registered via Subscribe.
type Entry struct {
	Time      time.Time
	Level     string
	Component string
	Message   string
}

// Logger writes colored, leveled lines to stdout and fans each one out
// to any number of subscriber channels registered via Subscribe.
type Logger struct {
	component string

	mu          sync.RWMutex
	subscribers []chan Entry
	quiet       bool
}

// New returns a Logger tagged with component (e.g. "orchestrator").
func New(component string) *Logger {
	return &Logger{component: component}
}

// Subscribe returns a channel that receives every entry logged from this
// point on. The channel is buffered; a slow subscriber drops entries
// rather than blocking the logger.
func (l *Logger) Subscribe() <-chan Entry {
	ch := make(chan Entry, 100)
	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()
	return ch
}

// SetQuiet suppresses console output while still feeding subscribers,
// used when the process's stdout is reserved for something else.
func (l *Logger) SetQuiet(quiet bool) {
	l.mu.Lock()
	l.quiet = quiet
	l.mu.Unlock()
}

var (
	levelColor = map[string]*color.Color{
		"DEBUG": color.New(color.FgHiBlack),
		"INFO":  color.New(color.FgGreen),
		"WARN":  color.New(color.FgHiYellow),
		"ERROR": color.New(color.FgHiRed, color.Bold),
	}
	timeColor = color.New(color.FgCyan)
)

func (l *Logger) emit(level, msg string) {
	entry := Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg}

	l.mu.RLock()
	quiet := l.quiet
	subs := l.subscribers
	l.mu.RUnlock()

	if !quiet {
		ts := timeColor.Sprint(entry.Time.Format("2006-01-02 15:04:05.000"))
		lvl := levelColor[level]
		if lvl == nil {
			lvl = color.New(color.Reset)
		}
		fmt.Fprintf(os.Stdout, "%s [%-5s] [%-*s] %s\n", ts, lvl.Sprint(level), componentWidth, l.component, msg)
	}

	for _, ch := range subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.emit("DEBUG", fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.emit("INFO", fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.emit("WARN", fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.emit("ERROR", fmt.Sprintf(format, args...)) }
