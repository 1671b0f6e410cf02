package device_manager

import (
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueFixture struct {
	clock *ManualClock
	q     *CommandQueue
	sent  []string
	given []PendingRequest
}

func newQueueFixture(maxRetries int) *queueFixture {
	f := &queueFixture{clock: NewManualClock(testEpoch())}
	f.q = NewCommandQueue(f.clock, func(m Message) error {
		f.sent = append(f.sent, m.Command.Name)
		return nil
	}, 2*time.Second, maxRetries, 0, quietLogger())
	f.q.OnGiveUp(func(p PendingRequest) { f.given = append(f.given, p) })
	return f
}

func msg(key inter.CommandKey) Message {
	return Message{Channel: inter.ChannelCommand, Command: protocol.GloryFitRegistry.MustGet(key)}
}

// 测试：同一时刻只有一条请求在途
func TestCommandQueue_SingleFlight(t *testing.T) {
	f := newQueueFixture(3)
	f.q.Enqueue(msg(keyVersion))
	f.q.Enqueue(msg(keyBattery))

	assert.Equal(t, []string{"VERSION"}, f.sent)
	require.NotNil(t, f.q.Pending())
	assert.Equal(t, "VERSION", f.q.Pending().Message.Command.Name)
	assert.Equal(t, 1, f.q.Len())

	f.q.Advance()
	assert.Equal(t, []string{"VERSION", "BATTERY"}, f.sent)

	f.q.Advance()
	assert.Nil(t, f.q.Pending())
	assert.Zero(t, f.clock.Pending(), "no timer should remain once idle")
}

// 测试：超时后恰好重发 maxRetries 次，然后放弃并发送下一条
func TestCommandQueue_RetryBound(t *testing.T) {
	f := newQueueFixture(3)
	f.q.Enqueue(msg(keyVersion))
	f.q.Enqueue(msg(keyBattery))

	for i := 0; i < 3; i++ {
		f.clock.Advance(2 * time.Second)
	}
	assert.Equal(t, []string{"VERSION", "VERSION", "VERSION", "VERSION"}, f.sent)
	assert.Empty(t, f.given)

	f.clock.Advance(2 * time.Second)
	require.Len(t, f.given, 1)
	assert.Equal(t, 3, f.given[0].Retries)
	assert.Equal(t, "BATTERY", f.sent[len(f.sent)-1])
	assert.Equal(t, "BATTERY", f.q.Pending().Message.Command.Name)
}

// 测试：重试上限为 0 时第一次超时即放弃
func TestCommandQueue_NoRetries(t *testing.T) {
	f := newQueueFixture(0)
	f.q.Enqueue(msg(keyVersion))
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"VERSION"}, f.sent)
	assert.Len(t, f.given, 1)
	assert.Nil(t, f.q.Pending())
}

// 测试：不等待响应的命令发出后立即推进
func TestCommandQueue_FireAndForget(t *testing.T) {
	f := newQueueFixture(3)
	f.q.Enqueue(msg(keyUnits))
	f.q.Enqueue(msg(keySteps))
	f.q.Enqueue(msg(keyVersion))
	f.q.Enqueue(msg(keyUnits))

	assert.Equal(t, []string{"UNITS", "STEPS", "VERSION"}, f.sent)
	f.q.Advance()
	assert.Equal(t, []string{"UNITS", "STEPS", "VERSION", "UNITS"}, f.sent)
	assert.Nil(t, f.q.Pending())
}

// 测试：SendNow 在空闲时立即发送，在途时插队到队首
func TestCommandQueue_SendNow(t *testing.T) {
	f := newQueueFixture(3)
	f.q.SendNow(msg(keyVersion))
	assert.Equal(t, []string{"VERSION"}, f.sent)

	f.q.Enqueue(msg(keyUnits))
	f.q.SendNow(msg(keyBattery))
	assert.Equal(t, 2, f.q.Len())

	f.q.Advance()
	assert.Equal(t, []string{"VERSION", "BATTERY"}, f.sent)
	f.q.Advance()
	assert.Equal(t, []string{"VERSION", "BATTERY", "UNITS"}, f.sent)
}

// 测试：过期的超时回调不会重发已完成的请求
func TestCommandQueue_StaleTimer(t *testing.T) {
	f := newQueueFixture(3)
	f.q.Enqueue(msg(keyVersion))
	f.clock.Advance(time.Second)
	f.q.Advance()
	f.q.Enqueue(msg(keyBattery))

	// VERSION 的超时时刻已过，BATTERY 尚未超时
	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"VERSION", "BATTERY"}, f.sent)
}

// 测试：Clear 取消定时器并丢弃剩余命令
func TestCommandQueue_Clear(t *testing.T) {
	f := newQueueFixture(3)
	f.q.Enqueue(msg(keyVersion))
	f.q.Enqueue(msg(keyBattery))
	f.q.Clear()

	assert.Nil(t, f.q.Pending())
	assert.Zero(t, f.q.Len())
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"VERSION"}, f.sent)
}

// 测试：队列满时丢弃最早的一条
func TestCommandQueue_Capacity(t *testing.T) {
	f := newQueueFixture(3)
	f.q.capacity = 2
	f.q.Enqueue(msg(keyVersion)) // 在途，不占队列
	f.q.Enqueue(msg(keyBattery))
	f.q.Enqueue(msg(keyUnits))
	f.q.Enqueue(msg(keySteps))

	assert.Equal(t, 2, f.q.Len())
	f.q.Advance()
	assert.Equal(t, []string{"VERSION", "UNITS", "STEPS"}, f.sent)
}
