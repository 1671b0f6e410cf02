package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sigurn/crc16"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Shokz 帧格式 (全部小端)
//
//	0  u16 前导 0x5aa5
//	2  u16 包长 (总长 - 8)
//	4  u8  固定 0x01
//	5  u8  确认标志
//	6  u16 固定 0
//	8  u16 负载长度 (总长 - 12)
//	10 u16 CRC16/MAXIM，覆盖负载
//	12 负载: u32 序列 0x01 len 0x02 0x04 group 0x03 0x04 code 0x04 argsLen，随后为参数
// =============================================================================

const (
	// ShokzPreamble 帧前导，小端写出为 a5 5a
	ShokzPreamble uint16 = 0x5aa5
	// ShokzHeaderSize 帧头长度 (到 CRC 为止)
	ShokzHeaderSize = 12
	// ShokzEnvelopeSize 负载中参数之前的固定信封长度
	ShokzEnvelopeSize = 40
	// ShokzMaxFrameSize 单帧上限，与 RFCOMM 缓冲区一致
	ShokzMaxFrameSize = 2048

	shokzMinHeader = 10
)

var maximTable = crc16.MakeTable(crc16.CRC16_MAXIM)

func crc16Maxim(data []byte) uint16 {
	return crc16.Checksum(data, maximTable)
}

// ShokzCodec 实现 inter.FrameCodec
type ShokzCodec struct {
	reg *Registry
	log *logrus.Entry
	buf []byte
}

// NewShokzCodec 创建一个新的编解码器实例
func NewShokzCodec(log *logrus.Entry) *ShokzCodec {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ShokzCodec{
		reg: ShokzRegistry,
		log: log.WithField("component", "codec"),
		buf: make([]byte, 0, ShokzMaxFrameSize),
	}
}

func (c *ShokzCodec) Encode(cmd inter.Command, args []byte) ([]byte, error) {
	total := ShokzHeaderSize + ShokzEnvelopeSize + len(args)
	if total > ShokzMaxFrameSize {
		return nil, fmt.Errorf("%w: %d", inter.ErrFrameTooLarge, total)
	}

	buf := make([]byte, total)
	le := binary.LittleEndian

	le.PutUint16(buf[0:], ShokzPreamble)
	le.PutUint16(buf[2:], uint16(total-8))
	le.PutUint32(buf[4:], 0x01)
	le.PutUint16(buf[8:], uint16(total-12))
	// buf[10:12] 留给 CRC

	le.PutUint32(buf[12:], 0x01)
	le.PutUint32(buf[16:], uint32(total-20))
	le.PutUint32(buf[20:], 0x02)
	le.PutUint32(buf[24:], 0x04)
	le.PutUint32(buf[28:], cmd.Key.Group)
	le.PutUint32(buf[32:], 0x03)
	le.PutUint32(buf[36:], 0x04)
	le.PutUint32(buf[40:], cmd.Key.Code)
	le.PutUint32(buf[44:], 0x04)
	le.PutUint32(buf[48:], uint32(len(args)))
	copy(buf[52:], args)

	le.PutUint16(buf[10:], crc16Maxim(buf[ShokzHeaderSize:]))
	return buf, nil
}

func (c *ShokzCodec) Feed(ch inter.Channel, data []byte) []inter.Frame {
	c.buf = append(c.buf, data...)

	var frames []inter.Frame
	le := binary.LittleEndian
	pos := 0

	for {
		rem := len(c.buf) - pos
		if rem < shokzMinHeader {
			break
		}

		preamble := le.Uint16(c.buf[pos:])
		if preamble != ShokzPreamble {
			c.log.Debugf("非前导字节 0x%04x，跳过 2 字节", preamble)
			pos += 2
			continue
		}

		packetLen := int(le.Uint16(c.buf[pos+2:]))
		if packetLen+8 > ShokzMaxFrameSize {
			c.log.Debugf("包长 %d 超出上限，按损坏处理", packetLen)
			pos += 2
			continue
		}
		// 负载长度不在 CRC 覆盖范围内，必须与包长一致
		payloadLen := int(le.Uint16(c.buf[pos+8:]))
		if payloadLen != packetLen-4 {
			c.log.Debugf("负载长度 %d 与包长 %d 不符，按损坏处理", payloadLen, packetLen)
			pos += 2
			continue
		}
		if rem < ShokzHeaderSize+payloadLen {
			break
		}

		isAck := c.buf[pos+5] != 0

		crc := le.Uint16(c.buf[pos+10:])
		payload := c.buf[pos+ShokzHeaderSize : pos+ShokzHeaderSize+payloadLen]
		pos += ShokzHeaderSize + payloadLen

		if expected := crc16Maxim(payload); crc != expected {
			c.log.Warnf("CRC 校验失败: 收到 0x%04x, 期望 0x%04x", crc, expected)
			continue
		}

		frame, err := c.parseEnvelope(payload)
		if err != nil {
			c.log.WithError(err).Warn("负载结构不匹配，丢弃该帧")
			continue
		}
		frame.Channel = ch
		frame.IsAck = isAck
		frames = append(frames, frame)
	}

	// 压缩缓冲区，未解析的尾部移到开头
	n := copy(c.buf, c.buf[pos:])
	c.buf = c.buf[:n]
	return frames
}

func (c *ShokzCodec) parseEnvelope(p []byte) (inter.Frame, error) {
	if len(p) < ShokzEnvelopeSize {
		return inter.Frame{}, fmt.Errorf("负载过短: %d", len(p))
	}
	le := binary.LittleEndian
	u32 := func(off int) uint32 { return le.Uint32(p[off:]) }

	if v := u32(0); v != 0x01 {
		return inter.Frame{}, fmt.Errorf("unk1 异常: 0x%x", v)
	}
	if v := int(u32(4)); v != len(p)-8 {
		return inter.Frame{}, fmt.Errorf("声明长度 %d 与剩余字节 %d 不符", v, len(p)-8)
	}
	for _, m := range []struct {
		off  int
		want uint32
	}{{8, 0x02}, {12, 0x04}, {20, 0x03}, {24, 0x04}, {32, 0x04}} {
		if v := u32(m.off); v != m.want {
			return inter.Frame{}, fmt.Errorf("偏移 %d 处标记异常: 0x%x, 期望 0x%x", m.off, v, m.want)
		}
	}

	key := inter.CommandKey{Group: u32(16), Code: u32(28)}
	argsLen := int(u32(36))
	if argsLen > len(p)-ShokzEnvelopeSize {
		return inter.Frame{}, fmt.Errorf("参数长度 %d 超出负载", argsLen)
	}

	args := make([]byte, argsLen)
	copy(args, p[ShokzEnvelopeSize:ShokzEnvelopeSize+argsLen])

	return inter.Frame{
		Command: c.reg.Lookup(key),
		Payload: args,
	}, nil
}

func (c *ShokzCodec) Reset() {
	c.buf = c.buf[:0]
}
