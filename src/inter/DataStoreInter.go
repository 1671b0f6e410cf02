package inter

import "time"

// DeviceRecord 设备记录
type DeviceRecord struct {
	ID           string    `json:"id"`      // 设备 ID (由族名与地址派生)
	Address      string    `json:"address"` // 蓝牙 MAC 地址
	Family       string    `json:"family"`  // 设备族
	Name         string    `json:"name"`
	Firmware     string    `json:"firmware"`
	Hardware     string    `json:"hardware"`
	BatteryLevel int       `json:"battery_level"` // -1 表示未知
	CreatedAt    time.Time `json:"created_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// SampleKind 采样数据类型
type SampleKind int

const (
	SampleSteps SampleKind = iota + 1
	SampleHeartRate
	SampleSleepStage
	SampleSpO2
)

func (k SampleKind) String() string {
	switch k {
	case SampleSteps:
		return "steps"
	case SampleHeartRate:
		return "heart_rate"
	case SampleSleepStage:
		return "sleep"
	case SampleSpO2:
		return "spo2"
	default:
		return "unknown"
	}
}

// Sample 一条设备采样
type Sample struct {
	Timestamp int64 `json:"ts"`    // Unix 毫秒
	Value     int32 `json:"value"` // 步数 / 心率 / 睡眠阶段 / 血氧
	Duration  int32 `json:"duration,omitempty"`
	// Details 类型相关的附加字段，例如步数记录中的跑步与步行分段
	Details map[string]int32 `json:"details,omitempty"`
}

// DataStore 定义了底层数据持久化的标准接口，用于管理设备记录、采样数据及日志。
// 写入采样时以 (设备, 类型, 时间戳) 为唯一键覆盖写入，重复投递是安全的。
type DataStore interface {
	// [设备记录]

	// SaveDevice 插入或更新设备记录。
	SaveDevice(rec DeviceRecord) error

	// LoadDevice 读取设备记录，不存在时返回 ErrDeviceNotFound。
	LoadDevice(id string) (DeviceRecord, error)

	// ListDevices 分页查询设备列表。
	// page 从 1 开始，size 为每页条数。
	ListDevices(page, size int) ([]DeviceRecord, error)

	// DestroyDevice 删除设备及其全部采样与日志。
	DestroyDevice(id string) error

	// [采样数据]

	// AppendSamples 批量写入同一类型的采样。
	AppendSamples(id string, kind SampleKind, samples []Sample) error

	// QueryRange 查询 [start, end] 毫秒区间内的采样，按时间升序。
	QueryRange(id string, kind SampleKind, start, end int64) ([]Sample, error)

	// QueryLatest 查询最新一条采样，没有数据时 ok 为 false。
	QueryLatest(id string, kind SampleKind) (s Sample, ok bool, err error)

	// [日志]

	// WriteLog 记录一条与设备相关的运行日志。
	WriteLog(id string, level string, message string) error

	Close() error
}
