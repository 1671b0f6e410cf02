package inter

// DeviceEvent 入站处理器产生的、与厂商无关的设备事件
type DeviceEvent interface {
	EventName() string
}

// CallAction 手表端对来电的操作
type CallAction int

const (
	CallActionAccept CallAction = iota
	CallActionReject
	CallActionIgnore
	CallActionEnd
)

// MusicAction 设备端的媒体按键
type MusicAction int

const (
	MusicPlay MusicAction = iota
	MusicPause
	MusicPlayPause
	MusicNext
	MusicPrevious
	MusicVolumeUp
	MusicVolumeDown
)

// CameraEvent 遥控拍照事件
type CameraEvent int

const (
	CameraOpen CameraEvent = iota
	CameraTakePicture
	CameraClose
)

// FindPhoneEvent 查找手机事件
type FindPhoneEvent int

const (
	FindPhoneStart FindPhoneEvent = iota
	FindPhoneStop
)

// NotificationAction 设备对通知的操作
type NotificationAction int

const (
	NotificationReply NotificationAction = iota
	NotificationDismiss
)

type BatteryInfo struct {
	Level    int
	Charging bool
}

type VersionInfo struct {
	Firmware string
	Hardware string
}

// PreferenceUpdate 设备上报的设置值，一次可携带多个键
type PreferenceUpdate struct {
	Values map[string]string
}

type CallControl struct {
	Action CallAction
}

type MusicControl struct {
	Action MusicAction
}

type CameraRemote struct {
	Event CameraEvent
}

type FindPhone struct {
	Event FindPhoneEvent
}

type NotificationControl struct {
	Action NotificationAction
	Phone  string
	Reply  string
}

type MultipointStatus struct {
	Enabled bool
}

// MultipointDevice 多点连接列表中的一台设备
type MultipointDevice struct {
	Address   string
	Name      string
	Connected bool
}

type MultipointDevices struct {
	Devices []MultipointDevice
}

type MultipointPairing struct {
	Active bool
}

// Toast 需要让用户看到的瞬时提示
type Toast struct {
	Message string
	Err     error
}

// FetchFinished 一轮批量拉取的作业队列已清空
type FetchFinished struct {
	RunID     string
	Completed int
	Failed    int
}

// StateChanged 会话状态变化
type StateChanged struct {
	From SessionState
	To   SessionState
}

func (BatteryInfo) EventName() string         { return "battery_info" }
func (VersionInfo) EventName() string         { return "version_info" }
func (PreferenceUpdate) EventName() string    { return "preference_update" }
func (CallControl) EventName() string         { return "call_control" }
func (MusicControl) EventName() string        { return "music_control" }
func (CameraRemote) EventName() string        { return "camera_remote" }
func (FindPhone) EventName() string           { return "find_phone" }
func (NotificationControl) EventName() string { return "notification_control" }
func (MultipointStatus) EventName() string    { return "multipoint_status" }
func (MultipointDevices) EventName() string   { return "multipoint_devices" }
func (MultipointPairing) EventName() string   { return "multipoint_pairing" }
func (Toast) EventName() string               { return "toast" }
func (FetchFinished) EventName() string       { return "fetch_finished" }
func (StateChanged) EventName() string        { return "state_changed" }
