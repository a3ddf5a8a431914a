package transport

import (
	"fmt"
	"strings"
	"sync"

	"codeberg.org/mutker/ecoguard/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoLogger forwards the client library's internal diagnostics to the
// package logger at a fixed level.
type pahoLogger struct {
	event func() *logger.LogEvent
}

func (p pahoLogger) Println(v ...interface{}) {
	p.event().Str("component", "paho").Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.event().Str("component", "paho").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

var bridgeOnce sync.Once

func bridgePahoLogs() {
	bridgeOnce.Do(func() {
		mqtt.CRITICAL = pahoLogger{event: logger.Error}
		mqtt.ERROR = pahoLogger{event: logger.Error}
		mqtt.WARN = pahoLogger{event: logger.Debug}
	})
}
