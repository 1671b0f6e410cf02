package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// =============================================================================
// 辅助函数
// =============================================================================

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type received struct {
	ch   inter.Channel
	data []byte
}

// recorder 记录传输层回调
type recorder struct {
	mu        sync.Mutex
	mtu       int
	frames    []received
	downErr   error
	down      bool
	downCount int
}

func (r *recorder) OnConnected(mtu int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mtu = mtu
}

func (r *recorder) OnReceive(ch inter.Channel, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, received{ch, data})
}

func (r *recorder) OnDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = true
	r.downErr = err
	r.downCount++
}

func (r *recorder) snapshot() ([]received, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.frames...), r.down
}

// fakePort 内存串口，只实现读写与关闭
type fakePort struct {
	serial.Port

	reads   chan []byte
	failure chan error
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []byte
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:   make(chan []byte, 8),
		failure: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case b := <-p.reads:
		return copy(buf, b), nil
	case err := <-p.failure:
		return 0, err
	case <-p.closed:
		return 0, &serial.PortError{}
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// 每次最多写 4 字节，验证循环写入
	n := min(len(b), 4)
	p.written = append(p.written, b[:n]...)
	return n, nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func useFakePort(t *testing.T, port *fakePort) {
	t.Helper()
	orig := openSerial
	openSerial = func(string, *serial.Mode) (serial.Port, error) { return port, nil }
	t.Cleanup(func() { openSerial = orig })
}

// =============================================================================
// RFCOMM
// =============================================================================

// 收到的数据原样投递到命令通道，写入被完整送出
func TestRFCOMM_ReceiveAndSend(t *testing.T) {
	port := newFakePort()
	useFakePort(t, port)
	rec := &recorder{}

	tr := NewRFCOMM("/dev/rfcomm0", quietLogger())
	require.ErrorIs(t, tr.Send(inter.ChannelCommand, []byte{1}), inter.ErrNotConnected)
	require.NoError(t, tr.Connect(context.Background(), rec))
	assert.Equal(t, protocol.ShokzMaxFrameSize, rec.mtu)

	port.reads <- []byte{0xaa, 0x55}
	port.reads <- []byte{0x01}
	require.Eventually(t, func() bool {
		frames, _ := rec.snapshot()
		return len(frames) == 2
	}, time.Second, time.Millisecond)
	frames, _ := rec.snapshot()
	assert.Equal(t, received{inter.ChannelCommand, []byte{0xaa, 0x55}}, frames[0])

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, tr.Send(inter.ChannelCommand, payload))
	port.mu.Lock()
	assert.Equal(t, payload, port.written)
	port.mu.Unlock()

	assert.Error(t, tr.Send(inter.ChannelData, payload))

	require.NoError(t, tr.Close())
	_, down := rec.snapshot()
	assert.True(t, down)
	assert.NoError(t, rec.downErr, "主动关闭不应带错误")
	assert.ErrorIs(t, tr.Send(inter.ChannelCommand, payload), inter.ErrNotConnected)
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, rec.downCount)
}

// 读取出错视为链路断开
func TestRFCOMM_ReadError(t *testing.T) {
	port := newFakePort()
	useFakePort(t, port)
	rec := &recorder{}

	tr := NewRFCOMM("/dev/rfcomm0", quietLogger())
	require.NoError(t, tr.Connect(context.Background(), rec))

	boom := errors.New("device gone")
	port.failure <- boom
	require.Eventually(t, func() bool {
		_, down := rec.snapshot()
		return down
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, rec.downErr, boom)
	assert.ErrorIs(t, tr.Send(inter.ChannelCommand, []byte{1}), inter.ErrNotConnected)
	require.NoError(t, tr.Close())
}

func TestRFCOMM_OpenError(t *testing.T) {
	orig := openSerial
	openSerial = func(string, *serial.Mode) (serial.Port, error) { return nil, errors.New("no such device") }
	t.Cleanup(func() { openSerial = orig })

	tr := NewRFCOMM("/dev/rfcomm9", quietLogger())
	err := tr.Connect(context.Background(), &recorder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/rfcomm9")
}

// =============================================================================
// BLE
// =============================================================================

type fakeLink struct {
	mu      sync.Mutex
	writes  []received
	dropped bool
}

func (l *fakeLink) write(ch inter.Channel, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, received{ch, data})
	return nil
}

func (l *fakeLink) mtu() int { return 185 }

func (l *fakeLink) disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped = true
	return nil
}

func newTestBLE(link *fakeLink) (*BLE, *func(inter.Channel, []byte)) {
	var notify func(inter.Channel, []byte)
	tr := NewBLE(nil, "aa:bb:cc:dd:ee:ff", GloryFitLayout(), quietLogger())
	tr.dial = func(_ context.Context, address string, layout GATTLayout, n func(inter.Channel, []byte)) (gattLink, error) {
		notify = n
		return link, nil
	}
	return tr, &notify
}

// 两个通道的通知按到达顺序投递，写入按通道转发
func TestBLE_Channels(t *testing.T) {
	link := &fakeLink{}
	tr, notify := newTestBLE(link)
	rec := &recorder{}

	require.NoError(t, tr.Connect(context.Background(), rec))
	assert.Equal(t, 185, rec.mtu)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", tr.address)

	buf := []byte{0xa2, 0x50}
	(*notify)(inter.ChannelCommand, buf)
	buf[1] = 0x00 // 回调返回后底层缓冲区可能被复用
	(*notify)(inter.ChannelData, []byte{0x32, 1, 2, 3, 4, 5, 6})

	require.Eventually(t, func() bool {
		frames, _ := rec.snapshot()
		return len(frames) == 2
	}, time.Second, time.Millisecond)
	frames, _ := rec.snapshot()
	assert.Equal(t, received{inter.ChannelCommand, []byte{0xa2, 0x50}}, frames[0])
	assert.Equal(t, inter.ChannelData, frames[1].ch)

	require.NoError(t, tr.Send(inter.ChannelData, []byte{0x37, 0xfa}))
	assert.Equal(t, []received{{inter.ChannelData, []byte{0x37, 0xfa}}}, link.writes)

	require.NoError(t, tr.Close())
	assert.True(t, link.dropped)
	_, down := rec.snapshot()
	assert.True(t, down)
	assert.ErrorIs(t, tr.Send(inter.ChannelCommand, []byte{1}), inter.ErrNotConnected)
}

// 适配器报告断开时以错误通知会话
func TestBLE_LinkLost(t *testing.T) {
	link := &fakeLink{}
	tr, _ := newTestBLE(link)
	rec := &recorder{}
	require.NoError(t, tr.Connect(context.Background(), rec))

	tr.linkLost()
	tr.linkLost()
	require.Eventually(t, func() bool {
		_, down := rec.snapshot()
		return down
	}, time.Second, time.Millisecond)
	assert.Error(t, rec.downErr)
	assert.Equal(t, 1, rec.downCount)

	// 已断开后 Close 不再重复通知
	require.NoError(t, tr.Close())
	assert.False(t, link.dropped)
	assert.Equal(t, 1, rec.downCount)
}

func TestBLE_DialError(t *testing.T) {
	tr := NewBLE(nil, "aa:bb:cc:dd:ee:ff", GloryFitLayout(), quietLogger())
	tr.dial = func(context.Context, string, GATTLayout, func(inter.Channel, []byte)) (gattLink, error) {
		return nil, errors.New("le-connection-abort-by-local")
	}
	require.Error(t, tr.Connect(context.Background(), &recorder{}))
	assert.ErrorIs(t, tr.Send(inter.ChannelCommand, []byte{1}), inter.ErrNotConnected)
	require.NoError(t, tr.Close())
}
