package websocket

import (
	"traffic-light/pkg/logger"

	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *zap.Logger
}

func NewWebSocketLogger(l *logger.Logger) *WebSocketLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &WebSocketLogger{
		logger: l.Logger.With(zap.String("component", "websocket")),
	}
}

func (l *WebSocketLogger) Info(event string, clientID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, clientID, fields)...)
}

func (l *WebSocketLogger) Warn(event string, clientID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, clientID, fields)...)
}

func (l *WebSocketLogger) Error(event string, clientID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, clientID, append(fields, zap.Error(err)))...)
}

func (l *WebSocketLogger) fields(event, clientID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("client_id", clientID),
	}, extra...)
}
