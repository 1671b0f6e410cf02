package inter

import (
	"context"
	"errors"
	"time"
)

// 会话与设备管理相关的标准错误
var (
	ErrNotInitialized  = errors.New("session: 设备尚未完成初始化")
	ErrNotSupported    = errors.New("session: 该设备族不支持此操作")
	ErrSessionDisposed = errors.New("session: 会话已释放")
	ErrFrameTooLarge   = errors.New("protocol: 帧长度超出上限")
	ErrDeviceNotFound  = errors.New("device: 未找到对应设备")
	ErrUnknownFamily   = errors.New("device: 未知的设备族")
	ErrNotConnected    = errors.New("transport: 链路未连接")

	// ErrMalformedPayload 负载结构校验失败 (标记字节或子长度不符)
	ErrMalformedPayload = errors.New("payload: 结构不匹配")
)

// SessionState 会话连接生命周期状态
type SessionState string

const (
	StateDisconnected SessionState = "disconnected" // 已断开 (初始与终止状态)
	StateConnecting   SessionState = "connecting"   // 传输层连接中
	StateInitializing SessionState = "initializing" // 链路已建立，执行初始化序列
	StateInitialized  SessionState = "initialized"  // 可接受用户操作
	StateInitStalled  SessionState = "init_stalled" // 初始化失败且策略为停滞
)

// DeviceStatus 定义设备的逻辑在线状态
type DeviceStatus int

const (
	StatusOffline DeviceStatus = iota // 离线
	StatusOnline                      // 在线
	StatusDelayed                     // 延迟（会话存活但超过阈值未收到任何帧）
)

// TransportHandler 传输层回调
// 同一连接的回调必须串行投递
type TransportHandler interface {
	// OnConnected 链路层连接建立，mtu 为协商后的最大写入单元
	OnConnected(mtu int)
	// OnReceive 收到一段原始数据
	OnReceive(ch Channel, data []byte)
	// OnDisconnected 链路断开，err 为 nil 表示主动关闭
	OnDisconnected(err error)
}

// Transport 定义会话使用的传输层
type Transport interface {
	// Connect 建立连接并开始向 h 投递回调
	Connect(ctx context.Context, h TransportHandler) error
	// Send 向指定通道写入一段数据
	Send(ch Channel, data []byte) error
	// Close 释放链路
	Close() error
}

// EventSink 设备事件的下游订阅者
type EventSink interface {
	OnDeviceEvent(deviceID string, ev DeviceEvent)
}

// EventSinkFunc 函数适配器
type EventSinkFunc func(deviceID string, ev DeviceEvent)

func (f EventSinkFunc) OnDeviceEvent(deviceID string, ev DeviceEvent) { f(deviceID, ev) }

// Progress 批量拉取进度
type Progress struct {
	Label   string
	Percent int
	Ongoing bool
}

// ProgressReporter 进度推送，调用方不等待结果
type ProgressReporter interface {
	OnProgress(deviceID string, p Progress)
}

// Preferences 设备偏好设置
// 设置项的读取方是族内的 setter，写入方是 PreferenceUpdate 事件
type Preferences interface {
	GetString(key string, def string) string
	GetInt(key string, def int) int
	GetBool(key string, def bool) bool
	Set(key string, value any)
}

// DeviceActions 面向应用层的出站操作
// 每个调用只负责把一条或多条命令放入出站队列，结果通过设备事件异步观察
type DeviceActions interface {
	SendNotification(n NotificationSpec) error
	SetCallState(c CallSpec) error
	SetAlarms(alarms []Alarm) error
	SetContacts(contacts []Contact) error
	SetCannedMessages(messages []string) error
	SendConfiguration(key string) error
	FetchRecordedData(mask DataTypeMask) error

	SetTime(t time.Time) error
	FindDevice(start bool) error
	FindPhone(start bool) error
	SetMusicState(s MusicStateSpec) error
	SetMusicInfo(m MusicSpec) error
	SetPhoneVolume(volume int) error
	SetCameraStatus(ev CameraEvent) error
	FactoryReset() error

	// --- 多点连接 (Multipoint) ---

	SetMultipoint(enable bool) error
	RequestMultipointStatus() error
	ListMultipointDevices() error
	ConnectMultipointDevice(address string) error
	DisconnectMultipointDevice(address string) error
	SetMultipointPairing(start bool) error
}

// NotificationType 通知来源分类
type NotificationType int

const (
	NotificationGeneric NotificationType = iota
	NotificationSMS
	NotificationEmail
	NotificationCall
	NotificationWeChat
	NotificationQQ
	NotificationWhatsApp
	NotificationTelegram
	NotificationFacebook
	NotificationTwitter
	NotificationInstagram
	NotificationLine
)

// NotificationSpec 待推送的通知
type NotificationSpec struct {
	ID        int
	Type      NotificationType
	SourceApp string
	Sender    string
	Title     string
	Body      string
	Phone     string
	// Vibrations 振动次数，0 表示不振动，负数表示使用默认值
	Vibrations int
}

// CallCommand 通话状态
type CallCommand int

const (
	CallIncoming CallCommand = iota
	CallOutgoing
	CallStart
	CallEnd
	CallRejected
)

// CallSpec 通话状态变更
type CallSpec struct {
	Command CallCommand
	Name    string
	Number  string
}

// 闹钟重复位，周一为最低位
const (
	AlarmMon uint8 = 1 << iota
	AlarmTue
	AlarmWed
	AlarmThu
	AlarmFri
	AlarmSat
	AlarmSun
)

// Alarm 闹钟
type Alarm struct {
	Enabled    bool
	Hour       int
	Minute     int
	Repetition uint8
}

// Contact 联系人
type Contact struct {
	Name   string
	Number string
}

// DataTypeMask 批量拉取的数据类型位
type DataTypeMask uint32

const (
	TypeActivity DataTypeMask = 1 << 0
	TypeWorkouts DataTypeMask = 1 << 1
	TypeSpO2     DataTypeMask = 1 << 5
	TypeAll      DataTypeMask = TypeActivity | TypeWorkouts | TypeSpO2
)

// MusicStateSpec 播放状态
type MusicStateSpec struct {
	Playing bool
	// Volume 手机音量，0-100
	Volume int
}

// MusicSpec 曲目信息
type MusicSpec struct {
	Artist string
	Album  string
	Track  string
}
