package logctx

import (
	"context"
	"pivotrepair/internal/global"
	"strings"
	"testing"
)

func TestLogEvent(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	ctx := New(context.Background(), global.NSTest, 2, done)
	ctx = AppendCtxTag(ctx, global.NSNode, "3")

	logger := GetLogger(ctx)
	if logger == nil {
		t.Fatalf("expected logger creation, got nil logger")
	}

	tests := []struct {
		name          string
		logLevel      int
		eventLevel    int
		severity      string
		message       string
		vars          []any
		expectEvents  int
		expectMessage string
	}{
		{
			name:          "event level within print level is recorded",
			logLevel:      2,
			eventLevel:    1,
			severity:      global.InfoLog,
			message:       "stored piece",
			expectEvents:  1,
			expectMessage: "stored piece",
		},
		{
			name:         "event level above print level is dropped",
			logLevel:     1,
			eventLevel:   3,
			severity:     global.InfoLog,
			message:      "should not appear",
			expectEvents: 0,
		},
		{
			name:          "errors bypass level filtering",
			logLevel:      0,
			eventLevel:    5,
			severity:      global.ErrorLog,
			message:       "store open failed",
			expectEvents:  1,
			expectMessage: "store open failed",
		},
		{
			name:          "formatted message",
			logLevel:      3,
			eventLevel:    2,
			severity:      global.InfoLog,
			message:       "task=%d",
			vars:          []any{42},
			expectEvents:  1,
			expectMessage: "task=42",
		},
		{
			name:          "vars without verbs keep message verbatim",
			logLevel:      3,
			eventLevel:    2,
			severity:      global.InfoLog,
			message:       "plain",
			vars:          []any{123},
			expectEvents:  1,
			expectMessage: "plain",
		},
		{
			name:          "verb without vars keeps message verbatim",
			logLevel:      3,
			eventLevel:    2,
			severity:      global.InfoLog,
			message:       "progress 100%d",
			expectEvents:  1,
			expectMessage: "progress 100%d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.mutex.Lock()
			logger.queue = nil
			logger.mutex.Unlock()

			SetLogLevel(ctx, tt.logLevel)
			LogEvent(ctx, tt.eventLevel, tt.severity, tt.message, tt.vars...)

			logger.mutex.Lock()
			defer logger.mutex.Unlock()

			if len(logger.queue) != tt.expectEvents {
				t.Fatalf("expected %d events, got %d", tt.expectEvents, len(logger.queue))
			}
			if tt.expectEvents == 0 {
				return
			}

			ev := logger.queue[0]
			if ev.Message != tt.expectMessage {
				t.Fatalf("expected message '%s', got '%s'", tt.expectMessage, ev.Message)
			}
			if strings.Join(ev.Tags, "/") != global.NSNode+"/3" {
				t.Fatalf("expected tags 'Node/3', got '%v'", ev.Tags)
			}
		})
	}
}

func TestCtxTags(t *testing.T) {
	base := AppendCtxTag(context.Background(), "a", "b")
	left := AppendCtxTag(base, "left")
	right := AppendCtxTag(base, "right")

	if got := strings.Join(GetTagList(left), "/"); got != "a/b/left" {
		t.Fatalf("expected 'a/b/left', got '%s'", got)
	}
	if got := strings.Join(GetTagList(right), "/"); got != "a/b/right" {
		t.Fatalf("expected 'a/b/right', got '%s'", got)
	}
	if got := GetTagList(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty tags, got '%v'", got)
	}
}
