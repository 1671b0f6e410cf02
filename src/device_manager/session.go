package device_manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// 状态机事件
const (
	evConnect    = "connect"
	evLinkUp     = "link_up"
	evReady      = "ready"
	evStall      = "init_failed"
	evDisconnect = "disconnect"
)

// SessionConfig 创建会话所需的依赖
type SessionConfig struct {
	DeviceID  string
	Address   string
	Support   Support
	Transport inter.Transport
	Profile   Profile
	Store     inter.DataStore
	Prefs     inter.Preferences
	Events    inter.EventSink
	Progress  inter.ProgressReporter
	Clock     Clock
	Logger    *logrus.Entry
}

// Session 一台已连接设备的会话
//
// 传输回调、定时器回调与用户操作都经过同一把锁串行执行，
// 族内处理器因此可以把会话当作单线程对象使用。
// 事件在释放锁之后按产生顺序投递给订阅者。
type Session struct {
	mu sync.Mutex

	id        string
	address   string
	support   Support
	reg       *protocol.Registry
	codec     inter.FrameCodec
	transport inter.Transport
	profile   Profile
	store     inter.DataStore
	prefs     inter.Preferences
	events    inter.EventSink
	progress  inter.ProgressReporter
	clock     Clock
	log       *logrus.Entry

	fsm       *fsm.FSM
	state     *atomic.String
	busy      *atomic.String
	lastFrame *atomic.Time

	mtu          int
	queue        *CommandQueue
	dispatcher   *Dispatcher
	fetcher      *Fetcher
	timers       map[*sessionTimer]struct{}
	initFailures int
	disposed     bool

	emitMu   sync.Mutex
	mailbox  []func()
	flushing bool
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Support == nil || cfg.Transport == nil {
		return nil, errors.New("session: 缺少设备族实现或传输层")
	}
	if cfg.Store == nil || cfg.Prefs == nil {
		return nil, errors.New("session: 缺少存储或偏好设置")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Events == nil {
		cfg.Events = inter.EventSinkFunc(func(string, inter.DeviceEvent) {})
	}

	s := &Session{
		id:        cfg.DeviceID,
		address:   cfg.Address,
		support:   cfg.Support,
		reg:       cfg.Support.Registry(),
		transport: cfg.Transport,
		profile:   cfg.Profile.withDefaults(),
		store:     cfg.Store,
		prefs:     cfg.Prefs,
		events:    cfg.Events,
		progress:  cfg.Progress,
		clock:     cfg.Clock,
		log: cfg.Logger.WithFields(logrus.Fields{
			"device": cfg.DeviceID,
			"family": cfg.Support.Family(),
		}),
		state:     atomic.NewString(string(inter.StateDisconnected)),
		busy:      atomic.NewString(""),
		lastFrame: atomic.NewTime(time.Time{}),
		timers:    make(map[*sessionTimer]struct{}),
	}
	if s.profile.Family == "" {
		s.profile.Family = cfg.Support.Family()
	}
	s.mtu = s.profile.MTU

	s.codec = cfg.Support.NewCodec(s.log)
	s.queue = NewCommandQueue(s, s.send, s.profile.CommandTimeout, s.profile.MaxRetries, s.profile.QueueCapacity, s.log)
	s.queue.OnGiveUp(s.onGiveUp)
	s.dispatcher = NewDispatcher(s.reg, s.log)
	s.fetcher = newFetcher(s, s.log)

	disconnected := string(inter.StateDisconnected)
	connecting := string(inter.StateConnecting)
	initializing := string(inter.StateInitializing)
	initialized := string(inter.StateInitialized)
	stalled := string(inter.StateInitStalled)

	s.fsm = fsm.NewFSM(
		disconnected,
		fsm.Events{
			{Name: evConnect, Src: []string{disconnected}, Dst: connecting},
			{Name: evLinkUp, Src: []string{connecting}, Dst: initializing},
			{Name: evReady, Src: []string{initializing}, Dst: initialized},
			{Name: evStall, Src: []string{initializing}, Dst: stalled},
			{Name: evDisconnect, Src: []string{connecting, initializing, initialized, stalled}, Dst: disconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.onEnterState(inter.SessionState(e.Src), inter.SessionState(e.Dst))
			},
		},
	)

	cfg.Support.Attach(s, s.dispatcher)
	return s, nil
}

// =============================================================================
// 只读访问
// =============================================================================

func (s *Session) ID() string      { return s.id }
func (s *Session) Address() string { return s.address }
func (s *Session) Family() string  { return s.support.Family() }

// State 当前会话状态，可在任意 goroutine 调用
func (s *Session) State() inter.SessionState { return inter.SessionState(s.state.Load()) }

// LastFrame 最近一次收到完整帧的时间
func (s *Session) LastFrame() time.Time { return s.lastFrame.Load() }

// IsBusy 是否有长耗时任务在执行
func (s *Session) IsBusy() bool { return s.busy.Load() != "" }

// BusyLabel 当前长耗时任务的描述
func (s *Session) BusyLabel() string { return s.busy.Load() }

// =============================================================================
// 生命周期
// =============================================================================

// Connect 打开传输层并等待链路建立
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return inter.ErrSessionDisposed
	}
	if !s.fire(evConnect) {
		state := s.State()
		s.mu.Unlock()
		return fmt.Errorf("session: 当前状态 %s 不能发起连接", state)
	}
	s.mu.Unlock()
	s.flush()

	if err := s.transport.Connect(ctx, s); err != nil {
		s.locked(func() {
			if s.disposed {
				return
			}
			s.teardown()
			s.fire(evDisconnect)
		})
		return fmt.Errorf("session: 连接失败: %w", err)
	}
	return nil
}

// Dispose 取消所有定时器、清空队列并关闭传输层
// 之后到达的传输回调全部被忽略
func (s *Session) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.teardown()
	s.fire(evDisconnect)
	s.disposed = true
	s.mu.Unlock()
	s.flush()

	return s.transport.Close()
}

// OnConnected 实现 inter.TransportHandler
func (s *Session) OnConnected(mtu int) {
	s.locked(func() {
		if s.disposed || s.State() != inter.StateConnecting {
			return
		}
		if mtu > 0 {
			s.mtu = mtu
		}
		s.codec.Reset()
		s.initFailures = 0
		s.fire(evLinkUp)

		if err := s.support.Initialize(); err != nil {
			s.log.WithError(err).Error("初始化序列失败")
			s.applyInitFailure()
			return
		}
		if s.profile.Readiness == ReadyOptimistic {
			s.fire(evReady)
		}
	})
}

// OnReceive 实现 inter.TransportHandler
func (s *Session) OnReceive(ch inter.Channel, data []byte) {
	s.locked(func() {
		if s.disposed {
			return
		}
		switch s.State() {
		case inter.StateDisconnected, inter.StateConnecting:
			s.log.WithField("len", len(data)).Debug("链路未就绪，丢弃数据")
			return
		}
		for _, f := range s.codec.Feed(ch, data) {
			s.handleFrame(f)
			if s.disposed {
				return
			}
		}
	})
}

// OnDisconnected 实现 inter.TransportHandler
func (s *Session) OnDisconnected(err error) {
	s.locked(func() {
		if s.disposed {
			return
		}
		entry := s.log
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("链路断开")
		s.teardown()
		s.fire(evDisconnect)
	})
}

func (s *Session) handleFrame(f inter.Frame) {
	s.lastFrame.Store(s.clock.Now())
	s.fetcher.touch()

	advance, err := s.dispatcher.Dispatch(f, s.queue.Pending())
	if err == nil && s.profile.Readiness == ReadyOnResponse && f.Command.Key == s.profile.ReadyCommand {
		s.fire(evReady)
	}
	if advance {
		s.queue.Advance()
	}
}

// teardown 清空会话内全部运行时状态，调用方持有锁
func (s *Session) teardown() {
	s.queue.Clear()
	s.fetcher.Reset()
	s.support.Reset()
	s.codec.Reset()
	for t := range s.timers {
		t.cancel()
	}
	s.busy.Store("")
}

func (s *Session) onGiveUp(p PendingRequest) {
	s.storeLog("warn", fmt.Sprintf("请求 %s 重试 %d 次后放弃", p.Message.Command.Name, p.Retries))
	if s.State() != inter.StateInitializing {
		return
	}
	s.initFailures++
	readyReq := s.profile.Readiness == ReadyOnResponse &&
		s.reg.ResponseKey(p.Message.Command) == s.profile.ReadyCommand
	if readyReq || s.initFailures >= s.profile.InitFailureLimit {
		s.applyInitFailure()
	}
}

func (s *Session) applyInitFailure() {
	if s.State() != inter.StateInitializing {
		return
	}
	switch s.profile.InitFailure {
	case InitStall:
		s.log.Warn("初始化失败，会话停滞")
		s.fire(evStall)
		s.Emit(inter.Toast{Message: "设备初始化失败"})
	default:
		s.log.Warn("初始化未完成，按策略继续")
		s.fire(evReady)
	}
}

func (s *Session) fire(event string) bool {
	if !s.fsm.Can(event) {
		return false
	}
	if err := s.fsm.Event(context.Background(), event); err != nil {
		s.log.WithError(err).WithField("event", event).Error("状态迁移失败")
		return false
	}
	return true
}

func (s *Session) onEnterState(from, to inter.SessionState) {
	s.state.Store(string(to))
	s.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("会话状态变化")
	s.storeLog("info", fmt.Sprintf("%s -> %s", from, to))
	s.Emit(inter.StateChanged{From: from, To: to})
}

func (s *Session) storeLog(level, msg string) {
	if err := s.store.WriteLog(s.id, level, msg); err != nil {
		s.log.WithError(err).Debug("写入设备日志失败")
	}
}

func (s *Session) send(m Message) error {
	data, err := s.codec.Encode(m.Command, m.Args)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"command": m.Command.String(),
		"channel": m.Channel.String(),
		"len":     len(data),
	}).Debug("发送命令")
	return s.transport.Send(m.Channel, data)
}

// locked 在会话锁内执行 f，释放锁后投递 f 产生的事件
func (s *Session) locked(f func()) {
	s.mu.Lock()
	f()
	s.mu.Unlock()
	s.flush()
}

func (s *Session) flush() {
	s.emitMu.Lock()
	if s.flushing {
		s.emitMu.Unlock()
		return
	}
	s.flushing = true
	for len(s.mailbox) > 0 {
		batch := s.mailbox
		s.mailbox = nil
		s.emitMu.Unlock()
		for _, f := range batch {
			f()
		}
		s.emitMu.Lock()
	}
	s.flushing = false
	s.emitMu.Unlock()
}

// =============================================================================
// 供设备族调用 (调用方已持有会话锁)
// =============================================================================

// Enqueue 把命令追加到出站队列
func (s *Session) Enqueue(ch inter.Channel, key inter.CommandKey, args []byte) {
	s.queue.Enqueue(Message{Channel: ch, Command: s.reg.MustGet(key), Args: args})
}

// SendNow 绕过排队立即发送
func (s *Session) SendNow(ch inter.Channel, key inter.CommandKey, args []byte) {
	s.queue.SendNow(Message{Channel: ch, Command: s.reg.MustGet(key), Args: args})
}

// Emit 投递设备事件
// PreferenceUpdate 先写回偏好，之后的 setter 读到的就是设备上报的值
func (s *Session) Emit(ev inter.DeviceEvent) {
	if pu, ok := ev.(inter.PreferenceUpdate); ok {
		for k, v := range pu.Values {
			s.prefs.Set(k, v)
		}
	}
	id, sink := s.id, s.events
	s.emitMu.Lock()
	s.mailbox = append(s.mailbox, func() { sink.OnDeviceEvent(id, ev) })
	s.emitMu.Unlock()
}

// ReportProgress 推送拉取进度
func (s *Session) ReportProgress(p inter.Progress) {
	if s.progress == nil {
		return
	}
	id, r := s.id, s.progress
	s.emitMu.Lock()
	s.mailbox = append(s.mailbox, func() { r.OnProgress(id, p) })
	s.emitMu.Unlock()
}

func (s *Session) SetBusy(label string) { s.busy.Store(label) }
func (s *Session) ClearBusy()           { s.busy.Store("") }

func (s *Session) Prefs() inter.Preferences { return s.prefs }
func (s *Session) Store() inter.DataStore   { return s.store }
func (s *Session) Log() *logrus.Entry       { return s.log }
func (s *Session) Profile() Profile         { return s.profile }
func (s *Session) Fetcher() *Fetcher        { return s.fetcher }
func (s *Session) Queue() *CommandQueue     { return s.queue }

// MTU 协商后的写入单元，未协商时取 Profile 中的值
func (s *Session) MTU() int { return s.mtu }

func (s *Session) Now() time.Time { return s.clock.Now() }

// AfterFunc 创建属于会话的定时器
// 回调在会话锁内执行，会话拆除时统一取消
func (s *Session) AfterFunc(d time.Duration, f func()) Timer {
	t := &sessionTimer{s: s}
	t.t = s.clock.AfterFunc(d, func() {
		s.locked(func() {
			if s.disposed || t.stopped {
				return
			}
			delete(s.timers, t)
			f()
		})
	})
	s.timers[t] = struct{}{}
	return t
}

type sessionTimer struct {
	s       *Session
	t       Timer
	stopped bool
}

// Stop 调用方持有会话锁
func (t *sessionTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.cancel()
	return true
}

func (t *sessionTimer) cancel() {
	t.stopped = true
	delete(t.s.timers, t)
	t.t.Stop()
}

// =============================================================================
// inter.DeviceActions
// =============================================================================

// act 检查会话状态后在锁内执行操作
func (s *Session) act(f func() error) error {
	var err error
	s.locked(func() {
		if s.disposed {
			err = inter.ErrSessionDisposed
			return
		}
		if s.State() != inter.StateInitialized {
			err = inter.ErrNotInitialized
			return
		}
		err = f()
	})
	return err
}

func (s *Session) SendNotification(n inter.NotificationSpec) error {
	return s.act(func() error { return s.support.SendNotification(n) })
}

func (s *Session) SetCallState(c inter.CallSpec) error {
	return s.act(func() error { return s.support.SetCallState(c) })
}

func (s *Session) SetAlarms(alarms []inter.Alarm) error {
	return s.act(func() error { return s.support.SetAlarms(alarms) })
}

func (s *Session) SetContacts(contacts []inter.Contact) error {
	return s.act(func() error { return s.support.SetContacts(contacts) })
}

func (s *Session) SetCannedMessages(messages []string) error {
	return s.act(func() error { return s.support.SetCannedMessages(messages) })
}

func (s *Session) SendConfiguration(key string) error {
	return s.act(func() error { return s.support.SendConfiguration(key) })
}

func (s *Session) FetchRecordedData(mask inter.DataTypeMask) error {
	return s.act(func() error { return s.support.FetchRecordedData(mask) })
}

func (s *Session) SetTime(t time.Time) error {
	return s.act(func() error { return s.support.SetTime(t) })
}

func (s *Session) FindDevice(start bool) error {
	return s.act(func() error { return s.support.FindDevice(start) })
}

func (s *Session) FindPhone(start bool) error {
	return s.act(func() error { return s.support.FindPhone(start) })
}

func (s *Session) SetMusicState(m inter.MusicStateSpec) error {
	return s.act(func() error { return s.support.SetMusicState(m) })
}

func (s *Session) SetMusicInfo(m inter.MusicSpec) error {
	return s.act(func() error { return s.support.SetMusicInfo(m) })
}

func (s *Session) SetPhoneVolume(volume int) error {
	return s.act(func() error { return s.support.SetPhoneVolume(volume) })
}

func (s *Session) SetCameraStatus(ev inter.CameraEvent) error {
	return s.act(func() error { return s.support.SetCameraStatus(ev) })
}

func (s *Session) FactoryReset() error {
	return s.act(func() error { return s.support.FactoryReset() })
}

func (s *Session) SetMultipoint(enable bool) error {
	return s.act(func() error { return s.support.SetMultipoint(enable) })
}

func (s *Session) RequestMultipointStatus() error {
	return s.act(func() error { return s.support.RequestMultipointStatus() })
}

func (s *Session) ListMultipointDevices() error {
	return s.act(func() error { return s.support.ListMultipointDevices() })
}

func (s *Session) ConnectMultipointDevice(address string) error {
	return s.act(func() error { return s.support.ConnectMultipointDevice(address) })
}

func (s *Session) DisconnectMultipointDevice(address string) error {
	return s.act(func() error { return s.support.DisconnectMultipointDevice(address) })
}

func (s *Session) SetMultipointPairing(start bool) error {
	return s.act(func() error { return s.support.SetMultipointPairing(start) })
}

var _ inter.DeviceActions = (*Session)(nil)
var _ inter.TransportHandler = (*Session)(nil)
