package app

import (
	"time"

	"github.com/KwakOri/vshot-server/internal/core"
)

type realScheduler struct{}

// NewScheduler returns the wall-clock Scheduler used in production.
func NewScheduler() core.Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) After(d time.Duration, fn func()) core.Task {
	return timerTask{time.AfterFunc(d, fn)}
}

type timerTask struct{ t *time.Timer }

func (tt timerTask) Cancel() bool { return tt.t.Stop() }
