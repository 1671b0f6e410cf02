package device_manager

import (
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

// Readiness 会话何时进入 Initialized
type Readiness string

const (
	// ReadyOptimistic 初始化序列入队后立即就绪
	ReadyOptimistic Readiness = "optimistic"
	// ReadyOnResponse 收到 ReadyCommand 并处理成功后就绪
	ReadyOnResponse Readiness = "response"
)

// InitFailurePolicy 初始化请求放弃后的处理方式
type InitFailurePolicy string

const (
	InitProceed InitFailurePolicy = "proceed"
	InitStall   InitFailurePolicy = "stall"
)

// Profile 设备族的运行参数
type Profile struct {
	Family    string
	Readiness Readiness
	// ReadyCommand 就绪策略为 response 时等待的响应键
	ReadyCommand inter.CommandKey

	CommandTimeout time.Duration
	MaxRetries     int
	QueueCapacity  int

	InitFailure      InitFailurePolicy
	InitFailureLimit int

	MTU                 int
	FetchTimeout        time.Duration
	BatteryPollInterval time.Duration

	SupportsSpO2     bool
	CannedReplySlots int
	AlarmSlots       int
}

func (p Profile) withDefaults() Profile {
	if p.Readiness == "" {
		p.Readiness = ReadyOptimistic
	}
	if p.CommandTimeout <= 0 {
		p.CommandTimeout = 2 * time.Second
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.QueueCapacity <= 0 {
		p.QueueCapacity = 1024
	}
	if p.InitFailure == "" {
		p.InitFailure = InitProceed
	}
	if p.InitFailureLimit <= 0 {
		p.InitFailureLimit = 3
	}
	return p
}

// Support 设备族实现
// 族内代码只通过 Session 暴露的方法访问队列、偏好与存储
type Support interface {
	inter.DeviceActions

	Family() string
	Registry() *protocol.Registry
	NewCodec(log *logrus.Entry) inter.FrameCodec

	// Attach 绑定会话并向 d 注册入站处理器，每个实例只绑定一个会话
	Attach(s *Session, d *Dispatcher)
	// Initialize 链路建立后调用，负责把初始化序列放入队列
	Initialize() error
	// Reset 会话拆除时清理族内状态
	Reset()
}

// BaseSupport 所有操作默认返回 ErrNotSupported
// 设备族嵌入它，只覆盖实际支持的操作
type BaseSupport struct {
	sess *Session
}

// Bind 保存会话引用
func (b *BaseSupport) Bind(s *Session) { b.sess = s }

// Session 当前绑定的会话
func (b *BaseSupport) Session() *Session { return b.sess }

func (b *BaseSupport) Reset() {}

func (b *BaseSupport) SendNotification(inter.NotificationSpec) error { return inter.ErrNotSupported }
func (b *BaseSupport) SetCallState(inter.CallSpec) error             { return inter.ErrNotSupported }
func (b *BaseSupport) SetAlarms([]inter.Alarm) error                 { return inter.ErrNotSupported }
func (b *BaseSupport) SetContacts([]inter.Contact) error             { return inter.ErrNotSupported }
func (b *BaseSupport) SetCannedMessages([]string) error              { return inter.ErrNotSupported }
func (b *BaseSupport) SendConfiguration(string) error                { return inter.ErrNotSupported }
func (b *BaseSupport) FetchRecordedData(inter.DataTypeMask) error    { return inter.ErrNotSupported }
func (b *BaseSupport) SetTime(time.Time) error                       { return inter.ErrNotSupported }
func (b *BaseSupport) FindDevice(bool) error                         { return inter.ErrNotSupported }
func (b *BaseSupport) FindPhone(bool) error                          { return inter.ErrNotSupported }
func (b *BaseSupport) SetMusicState(inter.MusicStateSpec) error      { return inter.ErrNotSupported }
func (b *BaseSupport) SetMusicInfo(inter.MusicSpec) error            { return inter.ErrNotSupported }
func (b *BaseSupport) SetPhoneVolume(int) error                      { return inter.ErrNotSupported }
func (b *BaseSupport) SetCameraStatus(inter.CameraEvent) error       { return inter.ErrNotSupported }
func (b *BaseSupport) FactoryReset() error                           { return inter.ErrNotSupported }
func (b *BaseSupport) SetMultipoint(bool) error                      { return inter.ErrNotSupported }
func (b *BaseSupport) RequestMultipointStatus() error                { return inter.ErrNotSupported }
func (b *BaseSupport) ListMultipointDevices() error                  { return inter.ErrNotSupported }
func (b *BaseSupport) ConnectMultipointDevice(string) error          { return inter.ErrNotSupported }
func (b *BaseSupport) DisconnectMultipointDevice(string) error       { return inter.ErrNotSupported }
func (b *BaseSupport) SetMultipointPairing(bool) error               { return inter.ErrNotSupported }
