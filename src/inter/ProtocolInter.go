package inter

import "fmt"

// =============================================================================
// 设备协议通用类型定义
// =============================================================================

// Channel 传输层逻辑通道
// RFCOMM 只有一个通道；BLE GATT 的命令特征与数据特征各占一个通道
type Channel uint8

const (
	// ChannelCommand 命令通道 (RFCOMM 唯一通道 / GATT 命令特征)
	ChannelCommand Channel = iota
	// ChannelData 数据通道 (GATT 数据特征)
	ChannelData
)

func (c Channel) String() string {
	switch c {
	case ChannelCommand:
		return "cmd"
	case ChannelData:
		return "data"
	default:
		return fmt.Sprintf("ch%d", uint8(c))
	}
}

// CommandKey 与设备族无关的命令键
// 分组式协议使用 Group + Code；单字节操作码协议只使用 Code，Group 恒为 0
type CommandKey struct {
	Group uint32
	Code  uint32
}

// OpcodeKey 由单字节操作码构造命令键
func OpcodeKey(op byte) CommandKey {
	return CommandKey{Code: uint32(op)}
}

// IsZero 零值键不对应任何命令
func (k CommandKey) IsZero() bool {
	return k.Group == 0 && k.Code == 0
}

func (k CommandKey) String() string {
	if k.Group == 0 && k.Code <= 0xff {
		return fmt.Sprintf("0x%02x", k.Code)
	}
	return fmt.Sprintf("0x%02x/0x%04x", k.Group, k.Code)
}

// Command 已命名的协议命令
type Command struct {
	// Key 命令键
	Key CommandKey
	// Name 可读名称，用于日志
	Name string
	// FireAndForget 发送后不等待响应，队列立即推进
	FireAndForget bool
	// Reply 显式指定的响应命令键；零值时由注册表的关联规则推导
	Reply CommandKey
	// Unrecognized 注册表中不存在的命令 (前向兼容：新固件可能下发未知命令)
	Unrecognized bool
}

func (c Command) String() string {
	if c.Unrecognized {
		return "UNKNOWN(" + c.Key.String() + ")"
	}
	return c.Name
}

// Frame 解码后的一帧
type Frame struct {
	// Channel 帧到达的通道
	Channel Channel
	// Command 注册表识别出的命令，未知命令的 Unrecognized 为真
	Command Command
	// IsAck 帧头中的确认标志 (不带该字段的协议恒为 false)
	IsAck bool
	// Payload 命令参数，不含帧头、命令标识与校验
	Payload []byte
}

// FrameCodec 定义某一设备族的帧编解码接口
// 解码是流式的：传输层每次回调的数据可能只含半帧，也可能含多帧
type FrameCodec interface {
	// Encode 将命令与参数封装为可直接写入传输层的字节
	Encode(cmd Command, args []byte) ([]byte, error)

	// Feed 追加一段传输层数据，返回其中所有完整且校验通过的帧
	// 不完整的尾部保留在内部缓冲区，等待下一次 Feed
	Feed(ch Channel, data []byte) []Frame

	// Reset 丢弃内部缓冲区
	Reset()
}
