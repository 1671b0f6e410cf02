package device_manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/config"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 辅助函数与变量
// =============================================================================

var (
	keyVersion = inter.OpcodeKey(protocol.GloryFitOpVersion)
	keyBattery = inter.OpcodeKey(protocol.GloryFitOpBattery)
	keyUnits   = inter.OpcodeKey(protocol.GloryFitOpUnits)
	keySteps   = inter.OpcodeKey(protocol.GloryFitOpSteps)
	keyHR      = inter.OpcodeKey(protocol.GloryFitOpHeartRate)
	keyVibrate = inter.OpcodeKey(protocol.GloryFitOpVibrate)
)

func testEpoch() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// fakeTransport 记录所有写入，Connect 同步回调 OnConnected
type fakeTransport struct {
	mu         sync.Mutex
	h          inter.TransportHandler
	sent       [][]byte
	channels   []inter.Channel
	mtu        int
	connectErr error
	sendErr    error
	closed     bool
}

func (t *fakeTransport) Connect(_ context.Context, h inter.TransportHandler) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	t.h = h
	h.OnConnected(t.mtu)
	return nil
}

func (t *fakeTransport) Send(ch inter.Channel, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	t.channels = append(t.channels, ch)
	return t.sendErr
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// opcodes 每次写入的第一个字节
func (t *fakeTransport) opcodes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, 0, len(t.sent))
	for _, b := range t.sent {
		out = append(out, b[0])
	}
	return out
}

func (t *fakeTransport) count(op byte) int {
	n := 0
	for _, b := range t.opcodes() {
		if b == op {
			n++
		}
	}
	return n
}

// memStore 内存实现的 inter.DataStore
type memStore struct {
	mu        sync.Mutex
	devices   map[string]inter.DeviceRecord
	samples   map[inter.SampleKind][]inter.Sample
	logs      []string
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		devices: make(map[string]inter.DeviceRecord),
		samples: make(map[inter.SampleKind][]inter.Sample),
	}
}

func (m *memStore) SaveDevice(rec inter.DeviceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[rec.ID] = rec
	return nil
}

func (m *memStore) LoadDevice(id string) (inter.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.devices[id]
	if !ok {
		return rec, inter.ErrDeviceNotFound
	}
	return rec, nil
}

func (m *memStore) ListDevices(page, size int) ([]inter.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inter.DeviceRecord, 0, len(m.devices))
	for _, r := range m.devices {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DestroyDevice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *memStore) AppendSamples(_ string, kind inter.SampleKind, samples []inter.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.samples[kind] = append(m.samples[kind], samples...)
	return nil
}

func (m *memStore) QueryRange(_ string, kind inter.SampleKind, start, end int64) ([]inter.Sample, error) {
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

func (m *memStore) QueryLatest(_ string, kind inter.SampleKind) (inter.Sample, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.samples[kind]
	if len(all) == 0 {
		return inter.Sample{}, false, nil
	}
	return all[len(all)-1], true, nil
}

func (m *memStore) WriteLog(_ string, level, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, level+": "+msg)
	return nil
}

func (m *memStore) Close() error { return nil }

// recorder 记录事件与进度
type recorder struct {
	mu       sync.Mutex
	events   []inter.DeviceEvent
	progress []inter.Progress
}

func (r *recorder) OnDeviceEvent(_ string, ev inter.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnProgress(_ string, p inter.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) states() []inter.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []inter.SessionState
	for _, ev := range r.events {
		if sc, ok := ev.(inter.StateChanged); ok {
			out = append(out, sc.To)
		}
	}
	return out
}

func (r *recorder) named(name string) []inter.DeviceEvent {
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

// testSupport 基于 GloryFit 命令表的最小设备族
// 版本回包负载为空时视为结构异常
type testSupport struct {
	BaseSupport
	initialize func(s *Session) error
	batteryErr error
	resets     int
}

func (t *testSupport) Family() string                              { return "test" }
func (t *testSupport) Registry() *protocol.Registry                { return protocol.GloryFitRegistry }
func (t *testSupport) NewCodec(log *logrus.Entry) inter.FrameCodec { return protocol.NewGloryFitCodec(log) }

func (t *testSupport) Attach(s *Session, d *Dispatcher) {
	t.Bind(s)
	d.Handle(keyVersion, func(f inter.Frame) error {
		if len(f.Payload) == 0 {
			return fmt.Errorf("%w: 版本为空", inter.ErrMalformedPayload)
		}
		s.Emit(inter.VersionInfo{Firmware: string(f.Payload)})
		return nil
	})
	d.Handle(keyBattery, func(f inter.Frame) error {
		if t.batteryErr != nil {
			return t.batteryErr
		}
		s.Emit(inter.BatteryInfo{Level: int(f.Payload[0])})
		return nil
	})
	// 步数与心率: 负载 [fd] 为结束标记，其余每字节一个样本
	fetchHandler := func(kind inter.SampleKind) Handler {
		return func(f inter.Frame) error {
			if len(f.Payload) == 1 && f.Payload[0] == protocol.GloryFitFetchEnd {
				s.Fetcher().Complete(kind)
				return nil
			}
			samples := make([]inter.Sample, 0, len(f.Payload))
			for i, b := range f.Payload {
				samples = append(samples, inter.Sample{Timestamp: int64(i), Value: int32(b)})
			}
			s.Fetcher().Persist(kind, samples)
			return nil
		}
	}
	d.Handle(keySteps, fetchHandler(inter.SampleSteps))
	d.Handle(keyHR, fetchHandler(inter.SampleHeartRate))
}

func (t *testSupport) Initialize() error {
	if t.initialize != nil {
		return t.initialize(t.Session())
	}
	return nil
}

func (t *testSupport) Reset() { t.resets++ }

func (t *testSupport) FindDevice(bool) error {
	t.Session().Enqueue(inter.ChannelCommand, keyVibrate, []byte{0x00})
	return nil
}

func (t *testSupport) FetchRecordedData(inter.DataTypeMask) error {
	t.Session().Fetcher().Enqueue(
		&FetchJob{Kind: inter.SampleSteps, Label: "steps", Channel: inter.ChannelCommand, Command: keySteps, Args: []byte{protocol.GloryFitFetchStart}},
		&FetchJob{Kind: inter.SampleHeartRate, Label: "heart rate", Channel: inter.ChannelCommand, Command: keyHR, Args: []byte{protocol.GloryFitFetchStart}},
	)
	return nil
}

// harness 一个会话及其全部替身
type harness struct {
	clock     *ManualClock
	transport *fakeTransport
	store     *memStore
	rec       *recorder
	support   *testSupport
	session   *Session
}

func newHarness(t *testing.T, profile Profile, support *testSupport) *harness {
	t.Helper()
	if support == nil {
		support = &testSupport{}
	}
	h := &harness{
		clock:     NewManualClock(testEpoch()),
		transport: &fakeTransport{mtu: 247},
		store:     newMemStore(),
		rec:       &recorder{},
		support:   support,
	}
	s, err := NewSession(SessionConfig{
		DeviceID:  "dev-1",
		Address:   "AA:BB:CC:DD:EE:FF",
		Support:   support,
		Transport: h.transport,
		Profile:   profile,
		Store:     h.store,
		Prefs:     config.NewPrefs(nil),
		Events:    h.rec,
		Progress:  h.rec,
		Clock:     h.clock,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Connect(context.Background()))
}

// receive 模拟手表通知
func (h *harness) receive(data ...byte) {
	h.session.OnReceive(inter.ChannelCommand, data)
}

var errHandler = errors.New("handler failed")
