package device_manager

import (
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
)

// Message 出站队列中的一条命令
type Message struct {
	Channel inter.Channel
	Command inter.Command
	Args    []byte
}

// PendingRequest 已发出、等待响应的请求
type PendingRequest struct {
	Message Message
	SentAt  time.Time
	Retries int
}

// CommandQueue 单飞出站队列
// 同一时刻至多一条请求在途，不等待响应的命令发出后立即推进
// 所有方法都要求调用方已持有会话锁
type CommandQueue struct {
	clock      Clock
	send       func(Message) error
	log        *logrus.Entry
	timeout    time.Duration
	maxRetries int
	capacity   int

	queue   []Message
	pending *PendingRequest
	timer   Timer
	gen     uint64

	onGiveUp func(PendingRequest)
}

func NewCommandQueue(clock Clock, send func(Message) error, timeout time.Duration, maxRetries, capacity int, log *logrus.Entry) *CommandQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CommandQueue{
		clock:      clock,
		send:       send,
		log:        log.WithField("component", "queue"),
		timeout:    timeout,
		maxRetries: maxRetries,
		capacity:   capacity,
	}
}

// OnGiveUp 设置请求在重试耗尽后的回调
func (q *CommandQueue) OnGiveUp(f func(PendingRequest)) { q.onGiveUp = f }

// Enqueue 追加到队尾，空闲时立即发送
func (q *CommandQueue) Enqueue(m Message) {
	if q.capacity > 0 && len(q.queue) >= q.capacity {
		// 队列满策略：丢弃最早的一条并压入新指令
		q.log.WithField("command", q.queue[0].Command.String()).Warn("出站队列已满，丢弃最早的命令")
		q.queue = q.queue[1:]
	}
	q.queue = append(q.queue, m)
	if q.pending == nil {
		q.sendNext()
	}
}

// SendNow 绕过排队直接发送
// 已有在途请求时插到队首，仍然保持单飞
func (q *CommandQueue) SendNow(m Message) {
	if q.pending != nil {
		q.queue = append([]Message{m}, q.queue...)
		return
	}
	q.transmit(m)
	if m.Command.FireAndForget {
		q.sendNext()
	}
}

// Pending 当前在途请求，没有时返回 nil
func (q *CommandQueue) Pending() *PendingRequest { return q.pending }

// Len 尚未发出的命令数
func (q *CommandQueue) Len() int { return len(q.queue) }

// Advance 收到关联响应，取消超时并发送下一条
func (q *CommandQueue) Advance() {
	if q.pending == nil {
		return
	}
	q.sendNext()
}

// Clear 取消定时器并清空队列
func (q *CommandQueue) Clear() {
	q.stopTimer()
	q.queue = nil
	q.pending = nil
}

func (q *CommandQueue) sendNext() {
	q.stopTimer()
	q.pending = nil
	for len(q.queue) > 0 {
		m := q.queue[0]
		q.queue = q.queue[1:]
		q.transmit(m)
		if q.pending != nil {
			return
		}
	}
}

// transmit 写出一条命令，需要响应的命令进入在途状态并启动超时
// 写入失败按超时处理，由重试逻辑接管
func (q *CommandQueue) transmit(m Message) {
	if err := q.send(m); err != nil {
		q.log.WithError(err).WithField("command", m.Command.String()).Error("命令写入失败")
	}
	if m.Command.FireAndForget {
		return
	}
	q.pending = &PendingRequest{Message: m, SentAt: q.clock.Now()}
	q.armTimer()
}

func (q *CommandQueue) armTimer() {
	q.stopTimer()
	q.gen++
	gen := q.gen
	q.timer = q.clock.AfterFunc(q.timeout, func() { q.onTimeout(gen) })
}

func (q *CommandQueue) stopTimer() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *CommandQueue) onTimeout(gen uint64) {
	// 过期的定时器
	if gen != q.gen || q.pending == nil {
		return
	}
	q.timer = nil
	p := q.pending
	if p.Retries < q.maxRetries {
		p.Retries++
		q.log.WithFields(logrus.Fields{
			"command": p.Message.Command.String(),
			"retry":   p.Retries,
		}).Warn("请求超时，重发")
		if err := q.send(p.Message); err != nil {
			q.log.WithError(err).Error("重发失败")
		}
		p.SentAt = q.clock.Now()
		q.armTimer()
		return
	}

	q.log.WithField("command", p.Message.Command.String()).Warn("请求重试耗尽，放弃")
	given := *p
	q.sendNext()
	if q.onGiveUp != nil {
		q.onGiveUp(given)
	}
}
