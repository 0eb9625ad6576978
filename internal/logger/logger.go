package logger

import (
	"io"
	"log"
	"strconv"

	"github.com/rollbar/rollbar-go"

	"diary/internal/model"
)

// Logger is what the services log through.
// args may be errors, maps of extra fields, or a model.User identifying who was affected.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// StdLogger writes to a stdlib *log.Logger.
type StdLogger struct {
	std   *log.Logger
	debug bool
}

var _ Logger = (*StdLogger)(nil)

// NewStd returns a Logger writing to w with the given prefix.
func NewStd(w io.Writer, prefix string, debug bool) *StdLogger {
	return &StdLogger{
		std:   log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		debug: debug,
	}
}

// Discard returns a Logger that drops everything; used in tests.
func Discard() *StdLogger {
	return NewStd(io.Discard, "", false)
}

func (l *StdLogger) print(level, msg string, args []interface{}) {
	if len(args) == 0 {
		l.std.Printf("%s %s", level, msg)
		return
	}
	l.std.Printf("%s %s %+v", level, msg, args)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l *StdLogger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *StdLogger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *StdLogger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

// RollbarLogger reports to Rollbar and mirrors everything to a StdLogger.
type RollbarLogger struct {
	std *StdLogger
}

var _ Logger = (*RollbarLogger)(nil)

// RollbarOptions configures the Rollbar notifier.
type RollbarOptions struct {
	Token       string
	Environment string
	Host        string
	CodeVersion string
}

// NewRollbar configures the global rollbar notifier and returns a Logger using it.
func NewRollbar(std *StdLogger, opts RollbarOptions) *RollbarLogger {
	rollbar.SetToken(opts.Token)
	rollbar.SetEnvironment(opts.Environment)
	rollbar.SetServerHost(opts.Host)
	rollbar.SetCodeVersion(opts.CodeVersion)
	return &RollbarLogger{std: std}
}

// New picks the Rollbar logger when a token is configured and the std logger otherwise.
func New(std *StdLogger, opts RollbarOptions) Logger {
	if opts.Token == "" {
		return std
	}
	return NewRollbar(std, opts)
}

// prepare moves a model.User argument into the rollbar person and keeps the rest.
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, msg)
	for _, arg := range args {
		if usr, ok := arg.(model.User); ok {
			if !usrSet {
				rollbar.SetPerson(strconv.Itoa(usr.ID), usr.FullName, "")
				usrSet = true
			}
			continue
		}
		out = append(out, arg)
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return out
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.std.Debug(msg, args...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.std.Info(msg, args...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.std.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.std.Error(msg, args...)
}
