package logging

import (
	"context"
	"log/slog"
)

// Reporter receives error-level records. err is the first error-valued
// attribute, if any.
type Reporter func(level slog.Level, msg string, err error, extras map[string]interface{})

// ReportingHandler passes every record to the wrapped handler and also hands
// error-level records to a Reporter.
type ReportingHandler struct {
	next   slog.Handler
	report Reporter
	attrs  []slog.Attr
	group  string
}

func NewReportingHandler(next slog.Handler, report Reporter) *ReportingHandler {
	return &ReportingHandler{next: next, report: report}
}

func (h *ReportingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ReportingHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError {
		extras := make(map[string]interface{}, len(h.attrs)+record.NumAttrs())
		var reported error
		collect := func(a slog.Attr) bool {
			value := a.Value.Resolve().Any()
			if err, ok := value.(error); ok && reported == nil {
				reported = err
			}
			extras[a.Key] = value
			return true
		}
		for _, a := range h.attrs {
			collect(a)
		}
		record.Attrs(func(a slog.Attr) bool {
			if h.group != "" {
				a.Key = h.group + "." + a.Key
			}
			return collect(a)
		})
		h.report(record.Level, record.Message, reported, extras)
	}
	return h.next.Handle(ctx, record)
}

func (h *ReportingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		prefixed = append(prefixed, a)
	}
	return &ReportingHandler{next: h.next.WithAttrs(attrs), report: h.report, attrs: prefixed, group: h.group}
}

func (h *ReportingHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &ReportingHandler{next: h.next.WithGroup(name), report: h.report, attrs: h.attrs, group: group}
}
