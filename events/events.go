package events

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const recentLimit = 50

var (
	mutex    = &sync.Mutex{}
	events   []Event
	logFile  *os.File
	listener func(Event)
)

// Init opens a timestamped event log file in dir. Events are still kept in
// memory when the file cannot be opened.
func Init(dir string) error {
	mutex.Lock()
	defer mutex.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(dir, fmt.Sprintf("events_%s.log", timestamp))

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	logFile = f

	fmt.Fprintf(logFile, "=== Event Log Started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	log.Info().Str("path", logPath).Msg("event log opened")
	return nil
}

// Close closes the event log file.
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetListener registers a callback invoked after every logged event.
func SetListener(fn func(Event)) {
	mutex.Lock()
	listener = fn
	mutex.Unlock()
}

// Record logs an event stamped with the current time.
func Record(eventType, source, detail string) {
	LogEvent(Event{
		Type:      eventType,
		Source:    source,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

func LogEvent(event Event) {
	mutex.Lock()
	events = append(events, event)
	if len(events) > 2*recentLimit {
		events = append([]Event(nil), events[len(events)-recentLimit:]...)
	}
	notify := listener

	if logFile != nil {
		// Format: [timestamp] EVENT_TYPE: source (detail)
		logLine := fmt.Sprintf("[%s] %s: %s",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			strings.ToUpper(event.Type),
			event.Source)
		if event.Detail != "" {
			logLine += " (" + event.Detail + ")"
		}
		if _, err := logFile.WriteString(logLine + "\n"); err != nil {
			log.Error().Err(err).Msg("failed to write to event log")
		}
	}
	mutex.Unlock()

	if notify != nil {
		notify(event)
	}
}

// GetEvents returns the recent events (last 50)
func GetEvents() []Event {
	mutex.Lock()
	defer mutex.Unlock()

	start := 0
	if len(events) > recentLimit {
		start = len(events) - recentLimit
	}
	out := make([]Event, len(events)-start)
	copy(out, events[start:])
	return out
}

// Newest returns the recent events newest first.
func Newest() []Event {
	list := GetEvents()
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list
}
