package broker

import (
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pahoLogger routes the client library's internal logging into zerolog.
type pahoLogger struct {
	level zerolog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	log.WithLevel(l.level).Str("component", "paho").Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	log.WithLevel(l.level).Str("component", "paho").Msgf(format, v...)
}

var loggersOnce sync.Once

func initPahoLoggers() {
	loggersOnce.Do(func() {
		mqtt.CRITICAL = pahoLogger{level: zerolog.ErrorLevel}
		mqtt.ERROR = pahoLogger{level: zerolog.ErrorLevel}
		mqtt.WARN = pahoLogger{level: zerolog.WarnLevel}
	})
}
