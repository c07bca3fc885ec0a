// logger/logfields.go
package logger

import (
	"time"

	"go.uber.org/zap"
)

// LogRequestStart logs the initiation of an HTTP exchange. Headers are expected to be
// redacted by the caller.
func (d *defaultLogger) LogRequestStart(event string, requestID string, method string, url string, headers map[string][]string) {
	if d.logLevel <= LogLevelDebug {
		d.logger.Debug("HTTP request started",
			zap.String("event", event),
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("url", url),
			zap.Any("headers", headers),
		)
	}
}

// LogRequestEnd logs the completion of an HTTP exchange.
func (d *defaultLogger) LogRequestEnd(event string, method string, url string, statusCode int, duration time.Duration) {
	if d.logLevel <= LogLevelDebug {
		d.logger.Debug("HTTP request completed",
			zap.String("event", event),
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// LogError logs an error that occurred while processing an HTTP exchange.
func (d *defaultLogger) LogError(event string, method string, url string, statusCode int, err error, rawResponse string) {
	if d.logLevel <= LogLevelError {
		errorMessage := ""
		if err != nil {
			errorMessage = err.Error()
		}
		d.logger.Error("Error during HTTP request",
			zap.String("event", event),
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.String("error_message", errorMessage),
			zap.String("raw_response", rawResponse),
		)
	}
}

// LogCredentialOperation logs the start or settlement of a generate, renew or refresh.
// A non-nil err downgrades the entry to Warn since the fallback chain may still recover.
func (d *defaultLogger) LogCredentialOperation(event string, operation string, pending string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("operation", operation),
		zap.String("pending_mode", pending),
		zap.Duration("duration", duration),
	}
	if err != nil {
		if d.logLevel <= LogLevelWarn {
			d.logger.Warn("Credential operation failed", append(fields, zap.Error(err))...)
		}
		return
	}
	if d.logLevel <= LogLevelInfo {
		d.logger.Info("Credential operation", fields...)
	}
}

// LogQueueEvent logs a change to the queue of suspended calls.
func (d *defaultLogger) LogQueueEvent(event string, callID string, sequence uint64, depth int) {
	if d.logLevel <= LogLevelDebug {
		d.logger.Debug("Call queue event",
			zap.String("event", event),
			zap.String("call_id", callID),
			zap.Uint64("sequence", sequence),
			zap.Int("queue_depth", depth),
		)
	}
}
