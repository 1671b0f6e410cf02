package protocol

import (
	"fmt"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
)

// GloryFit 的 GATT 服务与特征
const (
	GloryFitServiceCmd    = "000055ff-0000-1000-8000-00805f9b34fb"
	GloryFitCharCmdWrite  = "000033f1-0000-1000-8000-00805f9b34fb"
	GloryFitCharCmdRead   = "000033f2-0000-1000-8000-00805f9b34fb"
	GloryFitServiceData   = "000056ff-0000-1000-8000-00805f9b34fb"
	GloryFitCharDataWrite = "000034f1-0000-1000-8000-00805f9b34fb"
	GloryFitCharDataRead  = "000034f2-0000-1000-8000-00805f9b34fb"

	// GloryFitMTU 连接后请求的 MTU
	GloryFitMTU = 247
)

// GloryFitCodec 实现 inter.FrameCodec
// GATT 已经按特征值划分了消息边界，每次通知就是一帧：第一个字节为操作码，其余为负载
type GloryFitCodec struct {
	reg *Registry
	log *logrus.Entry
}

// NewGloryFitCodec 创建一个新的编解码器实例
func NewGloryFitCodec(log *logrus.Entry) *GloryFitCodec {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &GloryFitCodec{reg: GloryFitRegistry, log: log.WithField("component", "codec")}
}

func (c *GloryFitCodec) Encode(cmd inter.Command, args []byte) ([]byte, error) {
	if cmd.Key.Group != 0 || cmd.Key.Code > 0xff {
		return nil, fmt.Errorf("非单字节操作码: %s", cmd.Key)
	}
	buf := make([]byte, 0, 1+len(args))
	buf = append(buf, byte(cmd.Key.Code))
	return append(buf, args...), nil
}

func (c *GloryFitCodec) Feed(ch inter.Channel, data []byte) []inter.Frame {
	if len(data) == 0 {
		c.log.Debug("收到空通知，忽略")
		return nil
	}
	payload := make([]byte, len(data)-1)
	copy(payload, data[1:])
	return []inter.Frame{{
		Channel: ch,
		Command: c.reg.Lookup(inter.OpcodeKey(data[0])),
		Payload: payload,
	}}
}

// Reset GloryFit 不跨通知缓存数据
func (c *GloryFitCodec) Reset() {}
