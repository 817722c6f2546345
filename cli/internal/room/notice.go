package room

import (
	"fmt"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is one entry of the session's system log.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

func (n Notice) String() string {
	return fmt.Sprintf("%s [%s] %s", n.At.Format("15:04:05"), n.Level, n.Text)
}

const maxNotices = 200

type noticeLog struct {
	entries []Notice
}

func (l *noticeLog) add(level Level, format string, args ...any) {
	l.entries = append(l.entries, Notice{Level: level, Text: fmt.Sprintf(format, args...), At: time.Now()})
	if over := len(l.entries) - maxNotices; over > 0 {
		l.entries = append([]Notice(nil), l.entries[over:]...)
	}
}

func (l *noticeLog) snapshot() []Notice {
	return append([]Notice(nil), l.entries...)
}
