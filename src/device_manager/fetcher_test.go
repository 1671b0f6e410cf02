package device_manager

import (
	"errors"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := newHarness(t, Profile{FetchTimeout: timeout}, nil)
	h.connect(t)
	require.Equal(t, inter.StateInitialized, h.session.State())
	return h
}

// 测试：前一个任务结束之前不发出下一个任务的起始命令
func TestFetcher_SequentialJobs(t *testing.T) {
	h := fetchHarness(t, 0)
	require.NoError(t, h.session.FetchRecordedData(inter.TypeActivity))

	assert.Equal(t, []byte{protocol.GloryFitOpSteps}, h.transport.opcodes())
	assert.True(t, h.session.IsBusy())
	assert.Equal(t, "steps", h.session.BusyLabel())

	h.receive(protocol.GloryFitOpSteps, 10, 20, 30)
	assert.Len(t, h.store.samples[inter.SampleSteps], 3)
	assert.Equal(t, 0, h.transport.count(protocol.GloryFitOpHeartRate))

	// 其他类型的结束标记不影响当前任务
	h.receive(protocol.GloryFitOpHeartRate, protocol.GloryFitFetchEnd)
	assert.Equal(t, 0, h.transport.count(protocol.GloryFitOpHeartRate))

	h.receive(protocol.GloryFitOpSteps, protocol.GloryFitFetchEnd)
	assert.Equal(t, 1, h.transport.count(protocol.GloryFitOpHeartRate))
	assert.Equal(t, "heart rate", h.session.BusyLabel())

	h.receive(protocol.GloryFitOpHeartRate, 72, 75)
	h.receive(protocol.GloryFitOpHeartRate, protocol.GloryFitFetchEnd)

	assert.False(t, h.session.IsBusy())
	finished := h.rec.named("fetch_finished")
	require.Len(t, finished, 1)
	ff := finished[0].(inter.FetchFinished)
	assert.Equal(t, 2, ff.Completed)
	assert.Zero(t, ff.Failed)
	assert.NotEmpty(t, ff.RunID)

	require.NotEmpty(t, h.rec.progress)
	last := h.rec.progress[len(h.rec.progress)-1]
	assert.Equal(t, 100, last.Percent)
	assert.False(t, last.Ongoing)
}

// 测试：看门狗超时后任务失败，下一个任务继续
func TestFetcher_Watchdog(t *testing.T) {
	h := fetchHarness(t, 5*time.Second)
	require.NoError(t, h.session.FetchRecordedData(inter.TypeActivity))

	// 数据帧会重置看门狗
	h.clock.Advance(4 * time.Second)
	h.receive(protocol.GloryFitOpSteps, 1)
	h.clock.Advance(4 * time.Second)
	assert.Equal(t, 0, h.transport.count(protocol.GloryFitOpHeartRate))

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.transport.count(protocol.GloryFitOpHeartRate))
	assert.NotEmpty(t, h.rec.named("toast"))

	h.clock.Advance(5 * time.Second)
	assert.False(t, h.session.IsBusy())
	finished := h.rec.named("fetch_finished")
	require.Len(t, finished, 1)
	assert.Equal(t, 2, finished[0].(inter.FetchFinished).Failed)
}

// 测试：存储失败只提示用户，拉取继续
func TestFetcher_PersistError(t *testing.T) {
	h := fetchHarness(t, 0)
	h.store.appendErr = errors.New("disk full")
	require.NoError(t, h.session.FetchRecordedData(inter.TypeActivity))

	h.receive(protocol.GloryFitOpSteps, 10)
	toasts := h.rec.named("toast")
	require.Len(t, toasts, 1)
	assert.Error(t, toasts[0].(inter.Toast).Err)

	h.receive(protocol.GloryFitOpSteps, protocol.GloryFitFetchEnd)
	assert.Equal(t, 1, h.transport.count(protocol.GloryFitOpHeartRate))
}

// 测试：断开连接丢弃剩余任务且不发出完成信号
func TestFetcher_ResetOnDisconnect(t *testing.T) {
	h := fetchHarness(t, 5*time.Second)
	require.NoError(t, h.session.FetchRecordedData(inter.TypeActivity))

	h.session.OnDisconnected(nil)
	assert.False(t, h.session.IsBusy())
	assert.Empty(t, h.rec.named("fetch_finished"))
	assert.Zero(t, h.clock.Pending())
}
