package shokz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

// Support Shokz 骨传导耳机 (OpenSwim / OpenRun 系列) 的设备族实现
// 全部命令走 RFCOMM 单通道，响应码为请求码 | 0x8000
type Support struct {
	device_manager.BaseSupport

	log *logrus.Entry
}

// New 创建一个未绑定会话的实例
func New() device_manager.Support {
	return &Support{}
}

// DefaultProfile Shokz 的默认运行参数
// 收到固件版本后才算就绪，请求超时 2 秒，重试 3 次
func DefaultProfile() device_manager.Profile {
	return device_manager.Profile{
		Family:         protocol.ShokzFamily,
		Readiness:      device_manager.ReadyOnResponse,
		ReadyCommand:   protocol.ShokzFirmwareRet,
		CommandTimeout: 2 * time.Second,
		MaxRetries:     3,
		InitFailure:    device_manager.InitProceed,
		MTU:            protocol.ShokzMaxFrameSize,
	}
}

func (s *Support) Family() string               { return protocol.ShokzFamily }
func (s *Support) Registry() *protocol.Registry { return protocol.ShokzRegistry }

func (s *Support) NewCodec(log *logrus.Entry) inter.FrameCodec {
	return protocol.NewShokzCodec(log)
}

func (s *Support) Attach(sess *device_manager.Session, d *device_manager.Dispatcher) {
	s.Bind(sess)
	s.log = sess.Log().WithField("component", "shokz")

	d.Handle(protocol.ShokzFirmwareRet, s.handleFirmware)
	d.Handle(protocol.ShokzBatteryRet, s.handleBattery)
	d.Handle(protocol.ShokzPlaybackStatusRet, s.handlePlaybackStatus)
	d.Handle(protocol.ShokzVolumeRet, s.handleVolume)

	s.attachSettings(d)
	s.attachMultipoint(d)
}

// Initialize 固件版本请求直接发出，其余查询依次排队
func (s *Support) Initialize() error {
	sess := s.Session()
	sess.SendNow(inter.ChannelCommand, protocol.ShokzFirmwareGet, nil)
	for _, key := range []inter.CommandKey{
		protocol.ShokzMediaSourceGet,
		protocol.ShokzBatteryGet,
		protocol.ShokzEqualizerGet,
		protocol.ShokzPlaybackStatusGet,
		protocol.ShokzVolumeGet,
		protocol.ShokzMp3PlaybackModeGet,
		protocol.ShokzControlsGet,
		protocol.ShokzLanguageGet,
	} {
		sess.Enqueue(inter.ChannelCommand, key, nil)
	}
	return nil
}

func (s *Support) enqueue(key inter.CommandKey, args []byte) {
	s.Session().Enqueue(inter.ChannelCommand, key, args)
}

// =============================================================================
// 设备信息
// =============================================================================

func (s *Support) handleFirmware(f inter.Frame) error {
	rest, err := stripZero(f)
	if err != nil {
		return err
	}
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return fmt.Errorf("%w: 固件版本缺少结束符", inter.ErrMalformedPayload)
	}
	firmware := string(rest[:end])
	s.log.WithField("firmware", firmware).Info("固件版本")
	s.Session().Emit(inter.VersionInfo{Firmware: firmware})
	return nil
}

func (s *Support) handleBattery(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	level := (int(code) + 1) * 10
	s.log.WithField("level", level).Info("电量")
	s.Session().Emit(inter.BatteryInfo{Level: level})
	return nil
}

func (s *Support) handlePlaybackStatus(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	st, ok := playbackStatusByCode(code)
	if !ok {
		s.log.Warnf("未知播放状态 0x%02x", code)
		return nil
	}
	s.log.WithField("status", st).Info("播放状态")
	return nil
}

func (s *Support) handleVolume(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	s.log.WithField("volume", volumePercent(code)).Info("音量")
	return nil
}

// volumePercent 设备音量共 16 档
func volumePercent(level byte) int {
	return int(math.Round(float64(level) / 16 * 100))
}

// =============================================================================
// 负载解析辅助
// =============================================================================

// stripZero 响应参数以一个 0 字节开头
func stripZero(f inter.Frame) ([]byte, error) {
	if len(f.Payload) == 0 || f.Payload[0] != 0 {
		return nil, fmt.Errorf("%w: %s 缺少前导 0", inter.ErrMalformedPayload, f.Command)
	}
	return f.Payload[1:], nil
}

func zeroThenCode(f inter.Frame) (byte, error) {
	rest, err := stripZero(f)
	if err != nil {
		return 0, err
	}
	if len(rest) < 1 {
		return 0, errShort(f)
	}
	return rest[0], nil
}

func readU32(f inter.Frame) (uint32, error) {
	if len(f.Payload) < 4 {
		return 0, errShort(f)
	}
	return binary.LittleEndian.Uint32(f.Payload), nil
}

func errShort(f inter.Frame) error {
	return fmt.Errorf("%w: %s 参数过短", inter.ErrMalformedPayload, f.Command)
}
