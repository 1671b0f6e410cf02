package device_manager

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
)

// JobState 拉取任务状态
type JobState int

const (
	JobQueued JobState = iota
	JobActive
	JobCompleted
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobActive:
		return "active"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FetchJob 一类历史数据的拉取任务
type FetchJob struct {
	ID      string
	Kind    inter.SampleKind
	Label   string
	Channel inter.Channel
	Command inter.CommandKey
	Args    []byte

	State     JobState
	Samples   int
	StartedAt time.Time
}

// Fetcher 顺序执行拉取任务
// 前一个任务的结束标记到达之后才发出下一个任务的起始命令
type Fetcher struct {
	s   *Session
	log *logrus.Entry

	queue  []*FetchJob
	active *FetchJob

	runID     string
	total     int
	completed int
	failed    int

	watchdog Timer
}

func newFetcher(s *Session, log *logrus.Entry) *Fetcher {
	return &Fetcher{s: s, log: log.WithField("component", "fetch")}
}

// Enqueue 追加任务，空闲时立即启动第一个
func (f *Fetcher) Enqueue(jobs ...*FetchJob) {
	if len(jobs) == 0 {
		return
	}
	if f.active == nil && len(f.queue) == 0 {
		f.runID = uuid.NewString()
		f.total, f.completed, f.failed = 0, 0, 0
	}
	for _, j := range jobs {
		j.ID = uuid.NewString()
		j.State = JobQueued
		f.queue = append(f.queue, j)
		f.total++
	}
	if f.active == nil {
		f.next()
	}
}

// Active 当前执行中的任务
func (f *Fetcher) Active() *FetchJob { return f.active }

// IsActive 当前任务是否为 kind
func (f *Fetcher) IsActive(kind inter.SampleKind) bool {
	return f.active != nil && f.active.Kind == kind
}

// Busy 是否仍有任务未结束
func (f *Fetcher) Busy() bool { return f.active != nil || len(f.queue) > 0 }

// RunID 最近一轮拉取的标识
func (f *Fetcher) RunID() string { return f.runID }

// Persist 写入一批样本，失败时记录并提示用户
func (f *Fetcher) Persist(kind inter.SampleKind, samples []inter.Sample) {
	f.touch()
	if len(samples) == 0 {
		return
	}
	if f.active != nil && f.active.Kind == kind {
		f.active.Samples += len(samples)
	}
	if err := f.s.store.AppendSamples(f.s.id, kind, samples); err != nil {
		f.log.WithError(err).WithField("kind", kind.String()).Error("保存样本失败")
		f.s.Emit(inter.Toast{Message: fmt.Sprintf("保存%s数据失败", kind), Err: err})
	}
}

// Complete 当前任务的结束标记到达
func (f *Fetcher) Complete(kind inter.SampleKind) {
	if !f.IsActive(kind) {
		f.log.WithField("kind", kind.String()).Warn("结束标记与当前任务不符，忽略")
		return
	}
	f.active.State = JobCompleted
	f.completed++
	f.log.WithFields(logrus.Fields{
		"kind":    kind.String(),
		"samples": f.active.Samples,
	}).Info("拉取任务完成")
	f.next()
}

// Fail 放弃当前任务并继续下一个
func (f *Fetcher) Fail(reason string) {
	if f.active == nil {
		return
	}
	f.active.State = JobFailed
	f.failed++
	f.log.WithFields(logrus.Fields{
		"kind":   f.active.Kind.String(),
		"reason": reason,
	}).Warn("拉取任务失败")
	f.s.Emit(inter.Toast{Message: fmt.Sprintf("%s拉取失败: %s", f.active.Label, reason)})
	f.next()
}

// Reset 丢弃所有任务，不发出完成信号
func (f *Fetcher) Reset() {
	f.stopWatchdog()
	f.queue = nil
	f.active = nil
}

func (f *Fetcher) next() {
	wasRunning := f.active != nil
	f.stopWatchdog()
	f.active = nil

	if len(f.queue) > 0 {
		j := f.queue[0]
		f.queue = f.queue[1:]
		j.State = JobActive
		j.StartedAt = f.s.Now()
		f.active = j

		f.s.SetBusy(j.Label)
		f.s.ReportProgress(inter.Progress{Label: j.Label, Percent: f.percent(), Ongoing: true})
		f.s.Enqueue(j.Channel, j.Command, j.Args)
		f.touch()
		return
	}

	if wasRunning {
		f.s.ReportProgress(inter.Progress{Percent: 100})
		f.s.Emit(inter.FetchFinished{RunID: f.runID, Completed: f.completed, Failed: f.failed})
		f.s.ClearBusy()
	}
}

func (f *Fetcher) percent() int {
	if f.total == 0 {
		return 0
	}
	return (f.completed + f.failed) * 100 / f.total
}

// touch 重置看门狗
func (f *Fetcher) touch() {
	timeout := f.s.profile.FetchTimeout
	if f.active == nil || timeout <= 0 {
		return
	}
	f.stopWatchdog()
	job := f.active
	f.watchdog = f.s.AfterFunc(timeout, func() {
		if f.active == job {
			f.Fail("超时")
		}
	})
}

func (f *Fetcher) stopWatchdog() {
	if f.watchdog != nil {
		f.watchdog.Stop()
		f.watchdog = nil
	}
}
