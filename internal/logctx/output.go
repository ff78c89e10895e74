package logctx

import (
	"fmt"
	"io"
	"pivotrepair/internal/global"
	"strings"
	"time"
)

const (
	dedupWindow      time.Duration = 5 * time.Second
	dedupMinRepeats  int           = 10
	suppressCooldown time.Duration = 1 * time.Minute
)

// Tracks consecutive identical messages for suppression
type dedupState struct {
	lastMsg          string
	repeatCount      int
	lastSuppressTime time.Time
}

// Stringify full event. No newline is added, the message creator decides.
func (event Event) Format() (text string) {
	var parts []string
	if !event.Timestamp.IsZero() {
		parts = append(parts, "["+padTimestamp(event.Timestamp)+"]")
	}
	if len(event.Tags) > 0 {
		parts = append(parts, "["+strings.Join(event.Tags, "/")+"]")
	}
	if event.Severity != "" {
		parts = append(parts, "["+event.Severity+"]")
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	text = strings.Join(parts, " ")
	return
}

// Fixed width RFC3339 timestamps (fraction right-padded to 9 digits)
func padTimestamp(timestamp time.Time) (formatted string) {
	formatted = timestamp.Format(time.RFC3339Nano)

	dot := strings.IndexByte(formatted, '.')
	if dot < 0 {
		return
	}
	end := dot + 1
	for end < len(formatted) && formatted[end] >= '0' && formatted[end] <= '9' {
		end++
	}

	fraction := formatted[dot+1 : end]
	formatted = formatted[:dot+1] + fraction + strings.Repeat("0", 9-len(fraction)) + formatted[end:]
	return
}

// Starts a go routine that pops events and writes formatted output to io.Writer.
// Stops when logger.Done is closed and the queue is empty.
func StartWatcher(logger *Logger, output io.Writer) {
	logger.wg.Add(1)

	go func() {
		defer logger.wg.Done()

		var dedup dedupState
		for {
			event, ok := logger.next()
			if !ok {
				return
			}

			now := time.Now()
			if event.Message != "" && event.Message == dedup.lastMsg && now.Sub(event.Timestamp) <= dedupWindow {
				dedup.repeatCount++
				if dedup.repeatCount >= dedupMinRepeats && now.Sub(dedup.lastSuppressTime) >= suppressCooldown {
					fmt.Fprintf(output, "[%s] [%s] [%s] Suppressed %d repeated messages: %s\n",
						padTimestamp(event.Timestamp),
						strings.Join(event.Tags, "/"),
						global.InfoLog,
						dedup.repeatCount,
						dedup.lastMsg)

					dedup.lastSuppressTime = now
					dedup.repeatCount = 0
				}
				continue
			}

			dedup.lastMsg = event.Message
			dedup.repeatCount = 1
			fmt.Fprint(output, event.Format())
		}
	}()
}

// Blocks for the next event. Returns false once done is closed and nothing is left.
func (logger *Logger) next() (event Event, ok bool) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	for len(logger.queue) == 0 {
		select {
		case <-logger.Done:
			return
		default:
			logger.cond.Wait()
		}
	}

	event = logger.queue[0]
	logger.queue = logger.queue[1:]
	ok = true
	return
}
