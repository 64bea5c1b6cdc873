package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var me *MarkError
	if !errors.As(err, &me) {
		me = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", me.Message)
	if me.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", me.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", me.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	var me *MarkError
	if !errors.As(err, &me) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", me.Message),
		slog.String("error_code", me.Code),
		slog.String("category", string(me.Category)),
		slog.Bool("retryable", me.Retryable),
	}
	if me.Cause != nil {
		attrs = append(attrs, slog.String("cause", me.Cause.Error()))
	}
	for k, v := range me.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
