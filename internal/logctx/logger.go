// Central logging system. Buffers messages in memory and writes them to a single output in the background
package logctx

import (
	"context"
	"fmt"
	"pivotrepair/internal/global"
	"strings"
	"sync"
	"time"
)

// Log Event Structure
type Event struct {
	Timestamp time.Time
	Severity  string
	Tags      []string
	Message   string
}

// Logger buffers events until a watcher drains them
type Logger struct {
	ID         string
	CreatedAt  time.Time
	Done       <-chan struct{}
	PrintLevel int // Level at which the message should be recorded

	mutex sync.Mutex // protects queue and PrintLevel
	cond  *sync.Cond // signals new events
	queue []Event
	wg    sync.WaitGroup // Holds main execution until watchers are done
}

// Logger Constructor
func NewLogger(id string, logLevel int, done <-chan struct{}) (logger *Logger) {
	logger = &Logger{
		ID:         id,
		CreatedAt:  time.Now(),
		Done:       done,
		PrintLevel: logLevel,
	}
	logger.cond = sync.NewCond(&logger.mutex)
	return
}

// Creates a logger and embeds it in a child of baseCtx.
//
//	0 - None: quiet (prints nothing but errors)
//	1 - Standard: normal progress messages
//	2 - Progress: more progress messages (no actual data outputted)
//	3 - Data: shows limited data being processed
//	4 - FullData: shows full data being processed
//	5 - Debug: shows extra data during processing (raw bytes)
func New(baseCtx context.Context, id string, logLevel int, done <-chan struct{}) (ctxLogger context.Context) {
	ctxLogger = WithLogger(baseCtx, NewLogger(id, logLevel, done))
	return
}

// Attach the logger to context
func WithLogger(ctx context.Context, logger *Logger) (ctxLogger context.Context) {
	ctxLogger = context.WithValue(ctx, global.LoggerKey, logger)
	return
}

// Extracts Logger from context or returns nil
func GetLogger(ctx context.Context) (logger *Logger) {
	logger, _ = ctx.Value(global.LoggerKey).(*Logger)
	return
}

// Change the logger's level
func SetLogLevel(ctx context.Context, newLevel int) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}
	logger.mutex.Lock()
	logger.PrintLevel = newLevel
	logger.mutex.Unlock()
}

// Hold main thread exit until watchers are finished
func (logger *Logger) Wait() {
	logger.wg.Wait()
}

// Wakes any watcher blocked on an empty queue
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	logger.cond.Broadcast()
	logger.mutex.Unlock()
}

// Entry for logging events. Errors are always recorded regardless of level.
func LogEvent(ctx context.Context, eventLevel int, severity string, message string, vars ...any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}

	// Messages without verbs are kept verbatim even if vars are passed
	text := message
	if len(vars) > 0 && strings.Contains(message, "%") {
		text = fmt.Sprintf(message, vars...)
	}

	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	if eventLevel > logger.PrintLevel && severity != global.ErrorLog {
		return
	}

	logger.queue = append(logger.queue, Event{
		Timestamp: time.Now(),
		Tags:      GetTagList(ctx),
		Severity:  severity,
		Message:   text,
	})
	logger.cond.Signal()
}
