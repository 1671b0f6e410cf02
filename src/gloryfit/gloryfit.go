package gloryfit

import (
	"time"

	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

// Support GloryFit 手表的设备族实现
// 命令与数据分属两个 GATT 服务，分别映射为 ChannelCommand 与 ChannelData
type Support struct {
	device_manager.BaseSupport

	log *logrus.Entry

	batteryTimer device_manager.Timer
	sleep        sleepSession

	lastMusicState *inter.MusicStateSpec
	lastMusicInfo  *inter.MusicSpec
}

// New 创建一个未绑定会话的实例
func New() device_manager.Support {
	return &Support{}
}

// DefaultProfile GloryFit 的默认运行参数
// 初始化序列入队即视为就绪，只有版本与电量等待响应
func DefaultProfile() device_manager.Profile {
	return device_manager.Profile{
		Family:              protocol.GloryFitFamily,
		Readiness:           device_manager.ReadyOptimistic,
		CommandTimeout:      2 * time.Second,
		MaxRetries:          3,
		InitFailure:         device_manager.InitProceed,
		MTU:                 protocol.GloryFitMTU,
		FetchTimeout:        60 * time.Second,
		BatteryPollInterval: 15 * time.Minute,
		SupportsSpO2:        true,
		CannedReplySlots:    8,
		AlarmSlots:          3,
	}
}

func (s *Support) Family() string               { return protocol.GloryFitFamily }
func (s *Support) Registry() *protocol.Registry { return protocol.GloryFitRegistry }

func (s *Support) NewCodec(log *logrus.Entry) inter.FrameCodec {
	return protocol.NewGloryFitCodec(log)
}

func (s *Support) Attach(sess *device_manager.Session, d *device_manager.Dispatcher) {
	s.Bind(sess)
	s.log = sess.Log().WithField("component", "gloryfit")

	d.Handle(op(protocol.GloryFitOpVersion), s.handleVersion)
	d.Handle(op(protocol.GloryFitOpBattery), s.handleBattery)
	d.Handle(op(protocol.GloryFitOpDateTime), s.handleDateTime)
	d.Handle(op(protocol.GloryFitOpCamera), s.handleCamera)
	d.Handle(op(protocol.GloryFitOpAction), s.handleAction)
	d.Handle(op(protocol.GloryFitOpSmsQuickReply), s.handleSmsQuickReply)

	s.attachFetch(d)
}

// Initialize 与官方应用一致的初始化顺序
func (s *Support) Initialize() error {
	s.resetState()

	s.cmd(protocol.GloryFitOpVersion)
	s.cmd(protocol.GloryFitOpBattery)
	if s.Session().Prefs().GetBool(PrefSyncTime, true) {
		s.setTime(s.Session().Now())
	}
	s.setUserInfo()
	s.setGoalSteps()
	s.setGoalCalories()
	s.setGoalDistance()
	s.setSedentaryReminder()
	s.setLanguage()
	s.setUnits()
	s.setHeartRateMeasuring()
	if s.Session().Profile().SupportsSpO2 {
		s.setSpO2Monitoring()
	}
	s.setCallRejectButton()
	s.setSmsQuickReply()
	return nil
}

// Reset 会话拆除后定时器已由会话取消，这里只清理族内状态
func (s *Support) Reset() {
	s.batteryTimer = nil
	s.resetState()
}

func (s *Support) resetState() {
	s.sleep = sleepSession{}
	s.lastMusicState = nil
	s.lastMusicInfo = nil
}

func op(code byte) inter.CommandKey { return inter.OpcodeKey(code) }

// cmd 写入命令特征，args 不含操作码
func (s *Support) cmd(code byte, args ...byte) {
	s.Session().Enqueue(inter.ChannelCommand, op(code), args)
}

// data 写入数据特征
func (s *Support) data(code byte, args ...byte) {
	s.Session().Enqueue(inter.ChannelData, op(code), args)
}

// =============================================================================
// 命令通道入站
// =============================================================================

func (s *Support) handleVersion(f inter.Frame) error {
	fw := string(f.Payload)
	s.log.WithField("firmware", fw).Info("固件版本")
	s.Session().Emit(inter.VersionInfo{Firmware: fw})
	return nil
}

// handleBattery 手表只在充电时主动上报，其余时间靠定时轮询
func (s *Support) handleBattery(f inter.Frame) error {
	if len(f.Payload) < 1 {
		return errShort(f)
	}
	info := inter.BatteryInfo{
		Level:    int(f.Payload[0]),
		Charging: len(f.Payload) > 1 && f.Payload[1] == 0x01,
	}
	s.log.WithFields(logrus.Fields{"level": info.Level, "charging": info.Charging}).Info("电量")
	s.Session().Emit(info)
	s.rearmBatteryPoll()
	return nil
}

func (s *Support) rearmBatteryPoll() {
	if s.batteryTimer != nil {
		s.batteryTimer.Stop()
		s.batteryTimer = nil
	}
	interval := s.Session().Profile().BatteryPollInterval
	if interval <= 0 {
		return
	}
	s.log.WithField("interval", interval).Debug("重新设置电量轮询")
	s.batteryTimer = s.Session().AfterFunc(interval, func() {
		s.batteryTimer = nil
		s.cmd(protocol.GloryFitOpBattery)
	})
}

func (s *Support) handleDateTime(inter.Frame) error {
	s.log.Debug("时间设置确认")
	return nil
}

func (s *Support) handleCamera(f inter.Frame) error {
	if len(f.Payload) < 1 {
		return errShort(f)
	}
	var ev inter.CameraEvent
	switch f.Payload[0] {
	case cameraOpen:
		ev = inter.CameraOpen
	case cameraTrigger:
		ev = inter.CameraTakePicture
	case cameraClose:
		ev = inter.CameraClose
	default:
		s.log.Warnf("未知相机事件 0x%02x", f.Payload[0])
		return nil
	}
	s.Session().Emit(inter.CameraRemote{Event: ev})
	return nil
}

// 手表按键动作
const (
	actionCallHangup  byte = 0x02
	actionMusicPlay   byte = 0x07
	actionMusicNext   byte = 0x08
	actionMusicPrev   byte = 0x09
	actionFindPhone   byte = 0x0a
	actionVolumeUp    byte = 0x0d
	actionVolumeDown  byte = 0x0e
	actionCameraClose byte = 0x0f

	// actionMusicVolume 出站方向同一子码用于同步手机音量
	actionMusicVolume byte = 0x0d
)

var musicButtons = map[byte]inter.MusicAction{
	actionMusicPlay:  inter.MusicPlayPause,
	actionMusicNext:  inter.MusicNext,
	actionMusicPrev:  inter.MusicPrevious,
	actionVolumeUp:   inter.MusicVolumeUp,
	actionVolumeDown: inter.MusicVolumeDown,
}

func (s *Support) handleAction(f inter.Frame) error {
	if len(f.Payload) < 1 {
		return errShort(f)
	}
	sess := s.Session()
	code := f.Payload[0]

	if a, ok := musicButtons[code]; ok {
		sess.Emit(inter.MusicControl{Action: a})
		return nil
	}

	switch code {
	case actionCallHangup:
		action := inter.CallActionReject
		if sess.Prefs().GetString(PrefCallRejectMethod, "reject") == "ignore" {
			action = inter.CallActionIgnore
		}
		sess.Emit(inter.CallControl{Action: action})
		// 不回送挂断手表会一直停在来电界面
		s.cmd(protocol.GloryFitOpCallStatus, callEnd)
	case actionCameraClose:
		sess.Emit(inter.CameraRemote{Event: inter.CameraClose})
	case actionFindPhone:
		p := f.Payload
		switch {
		case len(p) == 1:
			sess.Emit(inter.FindPhone{Event: inter.FindPhoneStart})
		case len(p) == 3 && p[1] == 0x01 && p[2] == 0x00:
			sess.Emit(inter.FindPhone{Event: inter.FindPhoneStop})
		default:
			s.log.WithField("payload", hexString(p)).Warn("未处理的查找手机动作")
		}
	default:
		s.log.Warnf("未知按键动作 0x%02x", code)
	}
	return nil
}

// =============================================================================
// 数据通道入站
// =============================================================================

const smsQuickReplySuccess byte = 0xfe

// handleSmsQuickReply 手表上选择快捷回复
//
//	u8 号码长度, 号码, u8 内容长度, 内容
func (s *Support) handleSmsQuickReply(f inter.Frame) error {
	p := f.Payload
	if len(p) <= 4 {
		s.log.WithField("payload", hexString(p)).Warn("未处理的快捷回复")
		return nil
	}
	numLen := int(p[0])
	if len(p) < 1+numLen+1 {
		return errShort(f)
	}
	number := string(p[1 : 1+numLen])
	p = p[1+numLen:]
	msgLen := int(p[0])
	if len(p) < 1+msgLen {
		return errShort(f)
	}
	message := string(p[1 : 1+msgLen])

	if isBlank(number) {
		s.log.Warn("快捷回复缺少号码")
		return nil
	}
	if isBlank(message) {
		s.log.Warn("快捷回复内容为空")
		return nil
	}

	s.log.WithField("number", number).Info("快捷回复")
	sess := s.Session()
	sess.Emit(inter.NotificationControl{Action: inter.NotificationReply, Phone: number, Reply: message})
	sess.Emit(inter.CallControl{Action: inter.CallActionReject})
	s.cmd(protocol.GloryFitOpSmsQuickReply, smsQuickReplySuccess)
	return nil
}
