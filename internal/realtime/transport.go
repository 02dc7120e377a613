package realtime

import (
	"kit-sync/internal/logger"
	"kit-sync/internal/socketio"
)

type socketIODialer struct {
	cfg socketio.ClientConfig
	log *logger.Logger
}

// NewSocketIODialer returns a Dialer backed by the Socket.IO websocket client.
func NewSocketIODialer(cfg socketio.ClientConfig, log *logger.Logger) Dialer {
	return socketIODialer{cfg: cfg, log: log}
}

func (d socketIODialer) Dial(token string, onEvent EventFunc) Socket {
	return socketio.Dial(d.cfg, token, socketio.EventFunc(onEvent), d.log)
}
