// internal/logger/styled.go
package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/util"
	"github.com/relayforge/relayforge/theme"
)

// LogContext splits a log call's arguments in two: UserArgs always reach the
// active handler, DetailedArgs are only attached to a second, detail-tagged
// record so the file handler can carry more context than the terminal one.
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

// StyledLogger wraps slog.Logger with theme-aware formatting for data source
// names and health status, falling back to plain text when colour is off.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
	pretty bool
}

// NewStyledLogger creates a styled logger. pretty controls whether messages
// get pterm colour codes inlined, or render as plain text (piped output,
// NO_COLOR, non-TTY).
func NewStyledLogger(logger *slog.Logger, appTheme *theme.Theme, pretty bool) *StyledLogger {
	return &StyledLogger{logger: logger, theme: appTheme, pretty: pretty}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) style(s *pterm.Style, v any) string {
	if !sl.pretty || s == nil {
		return fmt.Sprintf("%v", v)
	}
	return s.Sprint(v)
}

// InfoWithCount logs msg with count styled and parenthesised, e.g. "loaded (3)".
func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, sl.style(sl.theme.Counts, fmt.Sprintf("(%d)", count))), args...)
}

// InfoWithNumbers substitutes each styled number into msg via fmt.Sprintf.
func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	formatted := make([]any, len(numbers))
	for i, n := range numbers {
		formatted[i] = sl.style(sl.theme.Numbers, n)
	}
	sl.logger.Info(fmt.Sprintf(msg, formatted...))
}

func (sl *StyledLogger) InfoWithDataSource(msg string, name domain.Name, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, sl.style(sl.theme.DataSource, name)), args...)
}

func (sl *StyledLogger) WarnWithDataSource(msg string, name domain.Name, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s", msg, sl.style(sl.theme.DataSource, name)), args...)
}

func (sl *StyledLogger) ErrorWithDataSource(msg string, name domain.Name, args ...any) {
	sl.logger.Error(fmt.Sprintf("%s %s", msg, sl.style(sl.theme.DataSource, name)), args...)
}

func (sl *StyledLogger) InfoWithHealthCheck(msg string, name domain.Name, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, sl.style(sl.theme.HealthCheck, name)), args...)
}

// InfoDataSourceStatus logs a data source's current status, rendering
// "Connected" in the healthy colour and a provider error kind in the
// unhealthy colour.
func (sl *StyledLogger) InfoDataSourceStatus(msg string, name domain.Name, status domain.DataSourceStatus, args ...any) {
	var style *pterm.Style
	var text string

	switch {
	case status.Connected:
		style, text = sl.theme.HealthHealthy, "Connected"
	case status.Err != nil:
		style, text = sl.theme.HealthUnhealthy, string(status.Err.Kind)
	default:
		style, text = sl.theme.HealthUnknown, "NotChecked"
	}

	sl.logger.Info(fmt.Sprintf("%s %s is %s", msg, sl.style(sl.theme.DataSource, name), sl.style(style, text)), args...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithRequestID returns a derived logger carrying the op_id for a single invocation.
func (sl *StyledLogger) WithRequestID(requestID string) *StyledLogger {
	return sl.With("op_id", requestID)
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return sl.With(args...)
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
		pretty: sl.pretty,
	}
}

func (sl *StyledLogger) InfoWithContext(msg string, name domain.Name, ctx LogContext) {
	sl.logWithContext(LogLevelInfo, msg, name, ctx)
}

func (sl *StyledLogger) WarnWithContext(msg string, name domain.Name, ctx LogContext) {
	sl.logWithContext(LogLevelWarn, msg, name, ctx)
}

func (sl *StyledLogger) ErrorWithContext(msg string, name domain.Name, ctx LogContext) {
	sl.logWithContext(LogLevelError, msg, name, ctx)
}

// logWithContext logs the terse, styled message to the active handler, then
// re-logs a detail-tagged record carrying DetailedArgs for the file handler.
func (sl *StyledLogger) logWithContext(level string, msg string, name domain.Name, ctx LogContext) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.style(sl.theme.DataSource, name))

	switch level {
	case LogLevelInfo:
		sl.logger.Info(styledMsg, ctx.UserArgs...)
	case LogLevelWarn:
		sl.logger.Warn(styledMsg, ctx.UserArgs...)
	case LogLevelError:
		sl.logger.Error(styledMsg, ctx.UserArgs...)
	}

	if len(ctx.DetailedArgs) > 0 {
		allArgs := make([]any, 0, len(ctx.UserArgs)+len(ctx.DetailedArgs)+2)
		allArgs = append(allArgs, "data_source", string(name))
		allArgs = append(allArgs, ctx.UserArgs...)
		allArgs = append(allArgs, ctx.DetailedArgs...)

		detailedCtx := context.WithValue(context.Background(), DefaultDetailedCookie, true)

		switch level {
		case LogLevelInfo:
			sl.logger.InfoContext(detailedCtx, msg, allArgs...)
		case LogLevelWarn:
			sl.logger.WarnContext(detailedCtx, msg, allArgs...)
		case LogLevelError:
			sl.logger.ErrorContext(detailedCtx, msg, allArgs...)
		}
	}
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme, cfg.PrettyLogs && util.ShouldUseColors())

	return logger, styledLogger, cleanup, nil
}
