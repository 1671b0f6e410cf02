package shokz

import (
	"fmt"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// PrefLocalAddress 关闭多点连接时上报给耳机的本机地址
	PrefLocalAddress = "local_address"

	defaultLocalAddress = "02:00:00:00:00:00"

	multipointEnabled   uint32 = 0x00010100
	connectTooManyLinks uint32 = 0x00000400
)

func (s *Support) attachMultipoint(d *device_manager.Dispatcher) {
	d.Handle(protocol.ShokzMultipointRet, s.handleMultipointStatus)
	d.Handle(protocol.ShokzMultipointOnAck, s.handleMultipointOn)
	d.Handle(protocol.ShokzMultipointOffAck, s.handleMultipointOff)
	d.Handle(protocol.ShokzMultipointDevicesRet, s.handleDevices)
	d.Handle(protocol.ShokzMultipointConnectAck, s.handleConnectAck)
	d.Handle(protocol.ShokzMultipointDisconnectAck, s.handleDisconnectAck)
	d.Handle(protocol.ShokzMultipointConnectionNotify, s.handleConnectionNotify)
	d.Handle(protocol.ShokzMultipointStartPairAck, s.handleStartPairAck)
	d.Handle(protocol.ShokzMultipointPairSecondFinish, s.handlePairFinish)
}

// =============================================================================
// 出站操作
// =============================================================================

func (s *Support) SetMultipoint(enable bool) error {
	if enable {
		s.log.Info("开启多点连接")
		s.enqueue(protocol.ShokzMultipointOn, nil)
		return nil
	}
	addr := s.Session().Prefs().GetString(PrefLocalAddress, defaultLocalAddress)
	mac, err := reversedMAC(addr)
	if err != nil {
		return err
	}
	s.log.WithField("local", addr).Info("关闭多点连接")
	s.enqueue(protocol.ShokzMultipointOff, mac)
	return nil
}

func (s *Support) RequestMultipointStatus() error {
	s.enqueue(protocol.ShokzMultipointGet, nil)
	return nil
}

func (s *Support) ListMultipointDevices() error {
	s.enqueue(protocol.ShokzMultipointDevicesGet, nil)
	return nil
}

func (s *Support) ConnectMultipointDevice(address string) error {
	mac, err := reversedMAC(address)
	if err != nil {
		return err
	}
	s.log.WithField("peer", address).Info("连接多点设备")
	s.enqueue(protocol.ShokzMultipointConnectReq, mac)
	return nil
}

func (s *Support) DisconnectMultipointDevice(address string) error {
	mac, err := reversedMAC(address)
	if err != nil {
		return err
	}
	s.log.WithField("peer", address).Info("断开多点设备")
	s.enqueue(protocol.ShokzMultipointDisconnectReq, mac)
	return nil
}

// SetMultipointPairing 两条命令都不等待响应
func (s *Support) SetMultipointPairing(start bool) error {
	if start {
		s.enqueue(protocol.ShokzMultipointStartPairReq, nil)
	} else {
		s.enqueue(protocol.ShokzMultipointPairSecondFinish, nil)
	}
	return nil
}

// reversedMAC 设备侧 MAC 按字节倒序传输
func reversedMAC(address string) ([]byte, error) {
	hw, err := net.ParseMAC(address)
	if err != nil || len(hw) != 6 {
		return nil, fmt.Errorf("无效的蓝牙地址 %q", address)
	}
	out := make([]byte, 6)
	for i := range hw {
		out[5-i] = hw[i]
	}
	return out, nil
}

// =============================================================================
// 入站处理
// =============================================================================

func (s *Support) handleMultipointStatus(f inter.Frame) error {
	status, err := readU32(f)
	if err != nil {
		return err
	}
	enabled := status == multipointEnabled
	s.log.WithFields(logrus.Fields{"enabled": enabled, "raw": fmt.Sprintf("0x%08x", status)}).Info("多点连接状态")
	s.Session().Emit(inter.MultipointStatus{Enabled: enabled})
	return nil
}

// handleMultipointOn 状态 0 表示成功，负载过短按失败处理
func (s *Support) handleMultipointOn(f inter.Frame) error {
	ok := ackOK(f)
	if !ok {
		s.log.Warn("开启多点连接未成功")
	}
	s.Session().Emit(inter.MultipointStatus{Enabled: ok})
	return nil
}

func (s *Support) handleMultipointOff(f inter.Frame) error {
	ok := ackOK(f)
	if !ok {
		s.log.Warn("关闭多点连接未成功")
	}
	s.Session().Emit(inter.MultipointStatus{Enabled: !ok})
	return nil
}

func ackOK(f inter.Frame) bool {
	status, err := readU32(f)
	return err == nil && status == 0
}

// handleDevices 设备列表
//
//	u8 0, u8 数量, 随后每台: u8 序号, 6 字节倒序 MAC, u8 已连接, u8 名称长度, UTF-8 名称
func (s *Support) handleDevices(f inter.Frame) error {
	p := f.Payload
	if len(p) < 2 {
		return errShort(f)
	}
	count := int(p[1])
	p = p[2:]

	devices := make([]inter.MultipointDevice, 0, count)
	for i := 0; i < count; i++ {
		if len(p) < 9 {
			return fmt.Errorf("%w: 第 %d 台设备记录不完整", inter.ErrMalformedPayload, i)
		}
		mac := p[1:7]
		connected := p[7] == 1
		nameLen := int(p[8])
		p = p[9:]
		if len(p) < nameLen {
			return fmt.Errorf("%w: 第 %d 台设备名称不完整", inter.ErrMalformedPayload, i)
		}
		name := p[:nameLen]
		p = p[nameLen:]
		if !utf8.Valid(name) {
			name = []byte(strings.ToValidUTF8(string(name), "�"))
		}

		devices = append(devices, inter.MultipointDevice{
			Address:   formatReversedMAC(mac),
			Name:      string(name),
			Connected: connected,
		})
	}
	s.log.WithField("count", len(devices)).Info("多点设备列表")
	s.Session().Emit(inter.MultipointDevices{Devices: devices})
	return nil
}

func formatReversedMAC(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = fmt.Sprintf("%02X", b[len(b)-1-i])
	}
	return strings.Join(parts, ":")
}

func (s *Support) handleConnectAck(f inter.Frame) error {
	status, err := readU32(f)
	if err != nil {
		return err
	}
	s.log.Infof("多点连接确认 0x%08x", status)
	if status == connectTooManyLinks {
		s.Session().Emit(inter.Toast{Message: "Too many connected devices"})
	}
	return nil
}

func (s *Support) handleDisconnectAck(f inter.Frame) error {
	status, err := readU32(f)
	if err != nil {
		return err
	}
	s.log.Infof("多点断开确认 0x%08x", status)
	return nil
}

// handleConnectionNotify 有设备连接或断开时刷新列表
func (s *Support) handleConnectionNotify(inter.Frame) error {
	s.log.Info("多点设备连接变化，刷新列表")
	s.enqueue(protocol.ShokzMultipointDevicesGet, nil)
	return nil
}

func (s *Support) handleStartPairAck(f inter.Frame) error {
	if status, err := readU32(f); err == nil {
		s.log.Infof("进入配对模式 0x%08x", status)
	}
	s.Session().Emit(inter.MultipointPairing{Active: true})
	return nil
}

func (s *Support) handlePairFinish(inter.Frame) error {
	s.log.Info("配对结束")
	s.Session().Emit(inter.MultipointPairing{Active: false})
	return nil
}
