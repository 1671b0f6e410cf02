// Package sessiontest 为设备族测试提供会话替身：内存传输、内存存储与事件记录器
package sessiontest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/config"
	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Epoch 测试时钟的起点 (本地时区)
var Epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)

// QuietLogger 只输出 panic 级别的日志
func QuietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// =============================================================================
// 传输层替身
// =============================================================================

// Write 一次写入
type Write struct {
	Channel inter.Channel
	Data    []byte
}

// Transport 记录所有写入，Connect 同步回调 OnConnected
type Transport struct {
	mu     sync.Mutex
	MTU    int
	writes []Write
	closed bool
}

func (t *Transport) Connect(_ context.Context, h inter.TransportHandler) error {
	h.OnConnected(t.MTU)
	return nil
}

func (t *Transport) Send(ch inter.Channel, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, Write{Channel: ch, Data: append([]byte(nil), data...)})
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Writes 到目前为止的全部写入
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Write(nil), t.writes...)
}

// Drain 取出并清空已记录的写入
func (t *Transport) Drain() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.writes
	t.writes = nil
	return out
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// =============================================================================
// 存储替身
// =============================================================================

// Store 内存实现的 inter.DataStore
type Store struct {
	mu      sync.Mutex
	devices map[string]inter.DeviceRecord
	samples map[inter.SampleKind][]inter.Sample
}

func NewStore() *Store {
	return &Store{
		devices: make(map[string]inter.DeviceRecord),
		samples: make(map[inter.SampleKind][]inter.Sample),
	}
}

func (m *Store) SaveDevice(rec inter.DeviceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[rec.ID] = rec
	return nil
}

func (m *Store) LoadDevice(id string) (inter.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.devices[id]
	if !ok {
		return rec, inter.ErrDeviceNotFound
	}
	return rec, nil
}

func (m *Store) ListDevices(int, int) ([]inter.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inter.DeviceRecord, 0, len(m.devices))
	for _, r := range m.devices {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) DestroyDevice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *Store) AppendSamples(_ string, kind inter.SampleKind, samples []inter.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[kind] = append(m.samples[kind], samples...)
	return nil
}

func (m *Store) QueryRange(_ string, kind inter.SampleKind, start, end int64) ([]inter.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inter.Sample
	for _, s := range m.samples[kind] {
		if s.Timestamp >= start && s.Timestamp <= end {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Store) QueryLatest(_ string, kind inter.SampleKind) (inter.Sample, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.samples[kind]
	if len(all) == 0 {
		return inter.Sample{}, false, nil
	}
	return all[len(all)-1], true, nil
}

func (m *Store) WriteLog(string, string, string) error { return nil }
func (m *Store) Close() error                          { return nil }

// Samples 某一类型已写入的全部样本
func (m *Store) Samples(kind inter.SampleKind) []inter.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inter.Sample(nil), m.samples[kind]...)
}

// =============================================================================
// 事件记录
// =============================================================================

// Recorder 记录事件与进度
type Recorder struct {
	mu       sync.Mutex
	events   []inter.DeviceEvent
	progress []inter.Progress
}

func (r *Recorder) OnDeviceEvent(_ string, ev inter.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) OnProgress(_ string, p inter.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

// Named 按事件名过滤
func (r *Recorder) Named(name string) []inter.DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []inter.DeviceEvent
	for _, ev := range r.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Last 最后一个名为 name 的事件，没有时返回 nil
func (r *Recorder) Last(name string) inter.DeviceEvent {
	all := r.Named(name)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Progress 进度推送记录
func (r *Recorder) Progress() []inter.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inter.Progress(nil), r.progress...)
}

// =============================================================================
// 会话装配
// =============================================================================

// Harness 一个会话及其全部替身
type Harness struct {
	Clock     *device_manager.ManualClock
	Transport *Transport
	Store     *Store
	Events    *Recorder
	Prefs     *config.Prefs
	Session   *device_manager.Session
}

// New 用手动时钟装配会话，不连接
func New(t testing.TB, sup device_manager.Support, profile device_manager.Profile, prefs map[string]any) *Harness {
	t.Helper()
	h := &Harness{
		Clock:     device_manager.NewManualClock(Epoch),
		Transport: &Transport{MTU: profile.MTU},
		Store:     NewStore(),
		Events:    &Recorder{},
		Prefs:     config.NewPrefs(prefs),
	}
	s, err := device_manager.NewSession(device_manager.SessionConfig{
		DeviceID:  "dev-1",
		Address:   "AA:BB:CC:DD:EE:FF",
		Support:   sup,
		Transport: h.Transport,
		Profile:   profile,
		Store:     h.Store,
		Prefs:     h.Prefs,
		Events:    h.Events,
		Progress:  h.Events,
		Clock:     h.Clock,
		Logger:    QuietLogger(),
	})
	require.NoError(t, err)
	h.Session = s
	return h
}

// Connect 建立连接，初始化序列随之入队
func (h *Harness) Connect(t testing.TB) {
	t.Helper()
	require.NoError(t, h.Session.Connect(context.Background()))
}

// Receive 模拟设备通知
func (h *Harness) Receive(ch inter.Channel, data []byte) {
	h.Session.OnReceive(ch, data)
}
