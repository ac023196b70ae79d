package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// redactedPrefix starts every redacted attribute value.
const redactedPrefix = "[redacted len="

// SpanPolicy decides what happens to each span attribute before export.
// Keys are checked in order: Blocked, Redacted, then Allowed. A key that
// matches nothing is dropped.
type SpanPolicy struct {
	// Allowed are key prefixes exported unchanged.
	Allowed []string
	// Redacted are exact keys whose string values are designer-authored
	// content. Their value is replaced by its length.
	Redacted []string
	// Blocked are key prefixes always dropped.
	Blocked []string
}

// DefaultSpanPolicy keeps pipeline, cache, HTTP and MCP attributes, hides
// layer names and text copied from exports, and drops personal data.
func DefaultSpanPolicy() SpanPolicy {
	return SpanPolicy{
		Allowed: []string{
			"designmap.", "error", "http.", "mcp.", "unit.", "component.", "stage.", "run.", "cache.",
		},
		Redacted: []string{"unit.name", "node.name", "node.characters"},
		Blocked:  []string{"user.", "email", "request.body", "response.body", "export."},
	}
}

type attributeAction int

const (
	actionDrop attributeAction = iota
	actionKeep
	actionRedact
)

func (policy SpanPolicy) action(key string) attributeAction {
	for _, prefix := range policy.Blocked {
		if strings.HasPrefix(key, prefix) {
			return actionDrop
		}
	}

	for _, redacted := range policy.Redacted {
		if key == redacted {
			return actionRedact
		}
	}

	for _, prefix := range policy.Allowed {
		if strings.HasPrefix(key, prefix) {
			return actionKeep
		}
	}

	return actionDrop
}

// spanFilter is a SpanProcessor that applies a SpanPolicy to ended spans
// before they reach the delegate.
type spanFilter struct {
	delegate sdktrace.SpanProcessor
	policy   SpanPolicy
	logger   *slog.Logger
	warned   sync.Map
}

// NewAttributeFilter wraps delegate so exported spans only carry what
// policy permits. When logger is non-nil every dropped key is logged once.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, policy SpanPolicy, logger *slog.Logger) sdktrace.SpanProcessor {
	return &spanFilter{delegate: delegate, policy: policy, logger: logger}
}

// OnStart delegates to the wrapped processor.
func (filter *spanFilter) OnStart(parent context.Context, span sdktrace.ReadWriteSpan) {
	filter.delegate.OnStart(parent, span)
}

// OnEnd hands the delegate a filtered view of span.
func (filter *spanFilter) OnEnd(span sdktrace.ReadOnlySpan) {
	filter.delegate.OnEnd(&filteredSpan{ReadOnlySpan: span, attrs: filter.apply(span.Attributes())})
}

// Shutdown delegates to the wrapped processor.
func (filter *spanFilter) Shutdown(ctx context.Context) error {
	err := filter.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("span filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (filter *spanFilter) ForceFlush(ctx context.Context) error {
	err := filter.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("span filter flush: %w", err)
	}

	return nil
}

func (filter *spanFilter) apply(attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		switch filter.policy.action(string(kv.Key)) {
		case actionKeep:
			kept = append(kept, kv)
		case actionRedact:
			kept = append(kept, redact(kv))
		case actionDrop:
			filter.warnOnce(string(kv.Key))
		}
	}

	return kept
}

func (filter *spanFilter) warnOnce(key string) {
	if filter.logger == nil {
		return
	}

	if _, seen := filter.warned.LoadOrStore(key, struct{}{}); !seen {
		filter.logger.Warn("span attribute dropped", "key", key)
	}
}

func redact(kv attribute.KeyValue) attribute.KeyValue {
	if kv.Value.Type() != attribute.STRING {
		return kv
	}

	return kv.Key.String(redactedPrefix + strconv.Itoa(len(kv.Value.AsString())) + "]")
}

// filteredSpan is a ReadOnlySpan with replaced attributes.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the filtered attributes.
func (span *filteredSpan) Attributes() []attribute.KeyValue {
	return span.attrs
}
