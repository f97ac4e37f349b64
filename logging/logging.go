// Copyright 2025 The Rush Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides structured logging for the framework, built on
// log/slog. It supports JSON, text, and human-readable console handlers,
// service metadata, sensitive-field redaction, and optional file rotation.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// HandlerType represents the type of logging handler.
type HandlerType string

const (
	// JSONHandler outputs structured JSON logs.
	JSONHandler HandlerType = "json"
	// TextHandler outputs key=value text logs.
	TextHandler HandlerType = "text"
	// ConsoleHandler outputs human-readable logs for development.
	ConsoleHandler HandlerType = "console"
)

// Level represents log level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Static errors for configuration failures.
var (
	ErrInvalidHandler    = errors.New("invalid handler type")
	ErrNilLogger         = errors.New("custom logger cannot be nil")
	ErrCannotChangeLevel = errors.New("cannot change level of a custom logger")
)

// Config holds the logging configuration.
//
// Thread-safety: all public methods are safe for concurrent use. The logger
// field uses an atomic pointer for lock-free reads; the mutex protects
// initialization and reconfiguration only.
type Config struct {
	handlerType HandlerType
	output      io.Writer
	level       Level

	serviceName    string
	serviceVersion string
	environment    string

	addSource   bool
	replaceAttr func(groups []string, a slog.Attr) slog.Attr

	customLogger *slog.Logger
	useCustom    bool

	rotation *lumberjack.Logger

	logger         atomic.Pointer[slog.Logger]
	mu             sync.Mutex
	isShuttingDown atomic.Bool

	registerGlobal bool
}

// Option is a functional option for configuring the logger.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		handlerType:    JSONHandler,
		output:         os.Stdout,
		level:          LevelInfo,
		serviceName:    "rush",
		serviceVersion: "unknown",
		environment:    "development",
	}
}

// New creates a new logging configuration.
//
// By default the global slog default logger is left alone; use
// WithGlobalLogger to register this logger globally. This lets multiple
// configurations coexist in one process.
func New(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.initializeHandler(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustNew creates a new logging configuration or panics on error.
func MustNew(opts ...Option) *Config {
	cfg, err := New(opts...)
	if err != nil {
		panic("logging initialization failed: " + err.Error())
	}
	return cfg
}

func (c *Config) validate() error {
	if c.output == nil {
		return errors.New("output writer cannot be nil")
	}
	if c.serviceName == "" {
		return errors.New("service name cannot be empty")
	}
	if c.useCustom && c.customLogger == nil {
		return ErrNilLogger
	}
	return nil
}

// initializeHandler creates and installs the handler.
func (c *Config) initializeHandler() error {
	if c.useCustom {
		c.logger.Store(c.customLogger)
		if c.registerGlobal {
			slog.SetDefault(c.customLogger)
		}
		return nil
	}

	out := c.output
	if c.rotation != nil {
		out = c.rotation
	}

	opts := &slog.HandlerOptions{
		Level:       c.level,
		AddSource:   c.addSource,
		ReplaceAttr: c.buildReplaceAttr(),
	}

	var handler slog.Handler
	switch c.handlerType {
	case JSONHandler:
		handler = slog.NewJSONHandler(out, opts)
	case TextHandler:
		handler = slog.NewTextHandler(out, opts)
	case ConsoleHandler:
		handler = newConsoleHandler(out, opts)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidHandler, c.handlerType)
	}

	logger := slog.New(handler).With(
		"service", c.serviceName,
		"version", c.serviceVersion,
		"env", c.environment,
	)
	c.logger.Store(logger)
	if c.registerGlobal {
		slog.SetDefault(logger)
	}
	return nil
}

// buildReplaceAttr returns the attribute replacer, always layering the
// sensitive-field redaction under any user-provided replacer.
func (c *Config) buildReplaceAttr() func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case "password", "token", "secret", "api_key", "authorization":
			return slog.String(a.Key, "***REDACTED***")
		}
		if c.replaceAttr != nil {
			return c.replaceAttr(groups, a)
		}
		return a
	}
}

// Logger returns the underlying slog.Logger. Safe for concurrent use.
func (c *Config) Logger() *slog.Logger {
	return c.logger.Load()
}

// With returns a logger with additional attributes.
func (c *Config) With(args ...any) *slog.Logger {
	return c.Logger().With(args...)
}

// Debug logs a debug message with structured attributes.
func (c *Config) Debug(msg string, args ...any) { c.log(slog.LevelDebug, msg, args...) }

// Info logs an informational message with structured attributes.
func (c *Config) Info(msg string, args ...any) { c.log(slog.LevelInfo, msg, args...) }

// Warn logs a warning message with structured attributes.
func (c *Config) Warn(msg string, args ...any) { c.log(slog.LevelWarn, msg, args...) }

// Error logs an error message with structured attributes.
func (c *Config) Error(msg string, args ...any) { c.log(slog.LevelError, msg, args...) }

var bgCtx = context.Background()

func (c *Config) log(level slog.Level, msg string, args ...any) {
	if c.isShuttingDown.Load() {
		return
	}
	logger := c.Logger()
	if !logger.Enabled(bgCtx, level) {
		return
	}
	logger.Log(bgCtx, level, msg, args...)
}

// SetLevel dynamically changes the minimum log level at runtime. Not
// supported with custom loggers.
func (c *Config) SetLevel(level Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.useCustom {
		return ErrCannotChangeLevel
	}

	oldLevel := c.level
	c.level = level
	if err := c.initializeHandler(); err != nil {
		c.level = oldLevel
		return err
	}
	return nil
}

// Level returns the current minimum log level.
func (c *Config) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// ServiceName returns the configured service name.
func (c *Config) ServiceName() string {
	return c.serviceName
}

// Shutdown stops the logger: further log calls become no-ops and the
// rotating file, if any, is closed.
func (c *Config) Shutdown(_ context.Context) error {
	c.isShuttingDown.Store(true)
	if c.rotation != nil {
		return c.rotation.Close()
	}
	return nil
}

// Functional options

// WithHandlerType sets the logging handler type.
func WithHandlerType(t HandlerType) Option {
	return func(c *Config) { c.handlerType = t }
}

// WithJSONHandler uses JSON structured logging (default).
func WithJSONHandler() Option { return WithHandlerType(JSONHandler) }

// WithTextHandler uses text key=value logging.
func WithTextHandler() Option { return WithHandlerType(TextHandler) }

// WithConsoleHandler uses human-readable console logging.
func WithConsoleHandler() Option { return WithHandlerType(ConsoleHandler) }

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Config) { c.output = w }
}

// WithLevel sets the minimum log level.
func WithLevel(l Level) Option {
	return func(c *Config) { c.level = l }
}

// WithDebugLevel enables debug logging.
func WithDebugLevel() Option { return WithLevel(LevelDebug) }

// WithServiceName sets the service name attribute.
func WithServiceName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.serviceName = name
		}
	}
}

// WithServiceVersion sets the service version attribute.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		if version != "" {
			c.serviceVersion = version
		}
	}
}

// WithEnvironment sets the environment attribute.
func WithEnvironment(env string) Option {
	return func(c *Config) {
		if env != "" {
			c.environment = env
		}
	}
}

// WithSource enables source code location in logs.
func WithSource(enabled bool) Option {
	return func(c *Config) { c.addSource = enabled }
}

// WithReplaceAttr sets a custom attribute replacer. Sensitive-field
// redaction still applies first.
func WithReplaceAttr(fn func(groups []string, a slog.Attr) slog.Attr) Option {
	return func(c *Config) { c.replaceAttr = fn }
}

// WithCustomLogger uses a caller-supplied slog.Logger as-is.
func WithCustomLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.customLogger = l
		c.useCustom = true
	}
}

// WithGlobalLogger registers this logger as the global slog default.
func WithGlobalLogger() Option {
	return func(c *Config) { c.registerGlobal = true }
}

// WithRotatingFile writes logs to path with size-based rotation instead of
// the configured writer. maxSizeMB bounds each file, maxBackups bounds
// retained rotated files, maxAgeDays bounds their age (0 disables either
// bound).
func WithRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(c *Config) {
		c.rotation = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
}
