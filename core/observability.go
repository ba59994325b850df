package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (v *Verifier) observeVerification(
	ctx context.Context,
	startedAt time.Time,
	result Result,
	fields map[string]any,
) {
	if v == nil {
		return
	}
	status := "success"
	if result.Invalid() {
		status = "failure"
	}
	durationMS := time.Since(startedAt).Milliseconds()

	contextFields := cloneFields(fields)
	contextFields["event_type"] = "verify"
	contextFields["status"] = status
	contextFields["duration_ms"] = durationMS
	contextFields["error_codes"] = strings.Join(result.Errors(), ",")

	tags := map[string]string{
		"operation": "verify",
		"status":    status,
	}
	if value := strings.TrimSpace(fmt.Sprint(contextFields["transport"])); value != "" && value != "<nil>" {
		tags["transport"] = value
	}

	v.recordCounter(ctx, MetricVerifyTotal, 1, tags)
	v.recordHistogram(ctx, MetricVerifyDurationMS, float64(durationMS), tags)
	for _, code := range result.ErrorCodes {
		codeTags := cloneTags(tags)
		codeTags["error_code"] = metricErrorCode(code)
		v.recordCounter(ctx, MetricVerifyErrorTotal, 1, codeTags)
	}

	if result.Invalid() {
		v.logInfo(ctx, "verify failed", contextFields)
		return
	}
	v.logDebug(ctx, "verify succeeded", contextFields)
}

// metricErrorCode keeps the error_code label cardinality bounded.
func metricErrorCode(code string) string {
	if IsKnownErrorCode(code) {
		return code
	}
	return ErrorCodeOther
}

func (v *Verifier) logDebug(ctx context.Context, message string, fields map[string]any) {
	v.logWithLevel(ctx, "debug", message, fields)
}

func (v *Verifier) logInfo(ctx context.Context, message string, fields map[string]any) {
	v.logWithLevel(ctx, "info", message, fields)
}

func (v *Verifier) logError(ctx context.Context, message string, fields map[string]any) {
	v.logWithLevel(ctx, "error", message, fields)
}

func (v *Verifier) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if v == nil || v.logger == nil {
		return
	}
	safeFields := RedactSensitiveMap(fields)
	logger := v.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(safeFields))
	}
	args := flattenFields(safeFields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (v *Verifier) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if v == nil || v.metricsRecorder == nil {
		return
	}
	v.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (v *Verifier) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if v == nil || v.metricsRecorder == nil {
		return
	}
	v.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
