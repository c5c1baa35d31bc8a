// Package logger builds the process logger: a charmbracelet/log console
// handler or a JSON line handler, both behind a filter that keeps bot tokens
// out of the output.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"tgpoll/pkg/config"
)

const (
	envPrefix = "TGPOLL_LOG_"

	formatText = "text"
	formatJSON = "json"

	redacted = "<redacted>"
)

// Bot API tokens look like "<bot id>:<35 url-safe chars>" and travel inside
// method URLs, so they can surface in wrapped transport errors.
var tokenPattern = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

// secretKeys are attribute keys whose values are never written.
var secretKeys = map[string]struct{}{
	"token":     {},
	"bot_token": {},
}

type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

// New builds the logger described by cfg, writing to stderr. TGPOLL_LOG_FORMAT,
// TGPOLL_LOG_LEVEL and TGPOLL_LOG_ADD_SOURCE override the file values.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// Component scopes base to one component. A nil base falls back to the
// process default.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", name)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	var next slog.Handler
	if s.format == formatText {
		next = charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(s.level),
			ReportTimestamp: true,
			ReportCaller:    s.addSource,
			Formatter:       charmLog.TextFormatter,
		})
	} else {
		next = &jsonHandler{level: s.level, addSource: s.addSource, writer: writer, mu: &sync.Mutex{}}
	}

	return slog.New(scrubHandler{next: next}), nil
}

func resolve(cfg config.LoggingConfig) (settings, error) {
	format := firstNonEmpty(os.Getenv(envPrefix+"FORMAT"), cfg.Format, formatText)
	if format != formatText && format != formatJSON {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(firstNonEmpty(os.Getenv(envPrefix+"LEVEL"), cfg.Level, "info"))
	if err != nil {
		return settings{}, err
	}

	addSource := cfg.AddSource
	if env := strings.TrimSpace(os.Getenv(envPrefix + "ADD_SOURCE")); env != "" {
		addSource = parseBool(env)
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			return value
		}
	}
	return ""
}

func parseLevel(text string) (slog.Level, error) {
	switch text {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

// scrubHandler rewrites secret attributes and token-shaped substrings before
// a record reaches the formatting handler.
type scrubHandler struct {
	next slog.Handler
}

func (h scrubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scrubHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, scrubString(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(scrubAttr(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h scrubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, scrubAttr(attr))
	}
	return scrubHandler{next: h.next.WithAttrs(clean)}
}

func (h scrubHandler) WithGroup(name string) slog.Handler {
	return scrubHandler{next: h.next.WithGroup(name)}
}

func scrubAttr(attr slog.Attr) slog.Attr {
	attr.Value = attr.Value.Resolve()

	if _, secret := secretKeys[strings.ToLower(attr.Key)]; secret {
		return slog.String(attr.Key, redacted)
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, scrubString(attr.Value.String()))
	case slog.KindGroup:
		group := attr.Value.Group()
		clean := make([]any, 0, len(group))
		for _, item := range group {
			clean = append(clean, scrubAttr(item))
		}
		return slog.Group(attr.Key, clean...)
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(attr.Key, scrubString(err.Error()))
		}
	}

	return attr
}

func scrubString(text string) string {
	return tokenPattern.ReplaceAllString(text, redacted)
}

// Entry is one JSON log line. The correlation keys shared by the poll path
// (component, bot, method, update_id) are lifted out of Fields.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Bot       string         `json:"bot,omitempty"`
	Method    string         `json:"method,omitempty"`
	UpdateID  *int64         `json:"update_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// lift moves a top-level correlation attribute into its Entry slot. It
// reports false when the attribute should stay in Fields.
func (e *Entry) lift(key string, value slog.Value) bool {
	if key == "update_id" {
		if value.Kind() != slog.KindInt64 {
			return false
		}
		id := value.Int64()
		e.UpdateID = &id
		return true
	}

	var slot *string
	switch key {
	case "component":
		slot = &e.Component
	case "bot":
		slot = &e.Bot
	case "method":
		slot = &e.Method
	default:
		return false
	}
	if value.Kind() != slog.KindString {
		return false
	}
	*slot = value.String()
	return true
}

type jsonHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	add := func(attr slog.Attr) bool {
		if attr.Equal(slog.Attr{}) {
			return true
		}
		if len(h.groups) == 0 && entry.lift(attr.Key, attr.Value) {
			return true
		}
		key := attr.Key
		if len(h.groups) > 0 {
			key = strings.Join(h.groups, ".") + "." + attr.Key
		}
		fields[key] = attrValue(attr.Value)
		return true
	}
	for _, attr := range h.attrs {
		add(attr)
	}
	record.Attrs(add)

	if len(fields) > 0 {
		entry.Fields = fields
	}
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	default:
		return value.Any()
	}
}
