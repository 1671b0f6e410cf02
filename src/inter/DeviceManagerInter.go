package inter

// DeviceManager 多设备会话的注册表，同时是设备记录的读写入口
// 会话的创建依赖具体的设备族与传输层，不在此接口中
type DeviceManager interface {
	// GenerateID 由族名与地址派生固定的设备 ID
	GenerateID(family, address string) string

	// Close 释放会话，设备记录保留
	Close(id string) error
	CloseAll() error

	// DeleteDevice 释放会话并删除设备的全部持久化数据
	DeleteDevice(id string) error

	GetDevice(id string) (DeviceRecord, error)
	ListDevices(page, size int) ([]DeviceRecord, error)

	// QueryDeviceStatus 按最后一次收到帧的时间判断在线状态
	QueryDeviceStatus(id string) (DeviceStatus, error)
}
