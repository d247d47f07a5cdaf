// Package logger はlogrusの共通設定を提供する
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	SEVERITY  = "severity"
	MESSAGE   = "message"
	TIMESTAMP = "timestamp"
	COMPONENT = "component"
)

// Options はロガーの設定
type Options struct {
	Level  string // debug / info / warn / error
	Format string // json / text
	Output io.Writer
}

// New は設定済みのlogrus.Loggerを作成する
// 不明なレベルは info として扱う
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}

	if strings.EqualFold(opts.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  TIMESTAMP,
				logrus.FieldKeyLevel: SEVERITY,
				logrus.FieldKeyMsg:   MESSAGE,
			},
		})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

// Component はコンポーネント名付きのEntryを返す
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField(COMPONENT, name)
}

// Discard はテスト用に出力を捨てるEntryを返す
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// TruncateID はログに出すユーザーIDを先頭だけに切り詰める
func TruncateID(id string) string {
	const keep = 8
	if len(id) <= keep {
		return id
	}
	return id[:keep] + "…"
}
