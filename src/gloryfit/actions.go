package gloryfit

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"golang.org/x/text/encoding/unicode"
)

const (
	cameraOpen    byte = 0x01
	cameraTrigger byte = 0x02
	cameraClose   byte = 0x03

	cannedMessagesSet byte = 0xfa
	cannedMessagesEnd byte = 0xfd

	contactsStart byte = 0xfa
	contactsAdd   byte = 0xfb
	contactsEnd   byte = 0xfc

	musicInfo    byte = 0xfa
	musicState   byte = 0x01
	musicPlaying byte = 0x02
	musicPaused  byte = 0x01

	quickReplyTarget byte = 0xfa
)

const (
	// notificationChunk 官方应用按 20 字节分片发送通知
	notificationChunk    = 20
	notificationMaxBytes = 240

	contactNumberMax = 15
	contactNameMax   = 20

	// contactsMinMTU 一条最长联系人记录加上分片头
	contactsMinMTU      = 2 + 1 + 4 + contactNumberMax + contactNameMax
	contactsFallbackMTU = 244

	cannedMessageMaxRunes = 24
)

// 手表端的通知类型码
var notificationCodes = map[inter.NotificationType]byte{
	inter.NotificationCall:      0x01,
	inter.NotificationSMS:       0x02,
	inter.NotificationWeChat:    0x03,
	inter.NotificationQQ:        0x04,
	inter.NotificationFacebook:  0x05,
	inter.NotificationTwitter:   0x06,
	inter.NotificationWhatsApp:  0x07,
	inter.NotificationLine:      0x08,
	inter.NotificationInstagram: 0x09,
	inter.NotificationTelegram:  0x0a,
	inter.NotificationEmail:     0x0b,
}

const notificationOther byte = 0x0f

func notificationCode(t inter.NotificationType) byte {
	if c, ok := notificationCodes[t]; ok {
		return c
	}
	return notificationOther
}

// =============================================================================
// 通知与来电
// =============================================================================

func (s *Support) SendNotification(n inter.NotificationSpec) error {
	if !s.Session().Prefs().GetBool(PrefSendAppNotifications, true) {
		s.log.Debug("应用通知已关闭，忽略")
		return nil
	}

	sender := n.Sender
	if isBlank(sender) {
		sender = n.Title
	}
	var text string
	switch {
	case !isBlank(sender) && !isBlank(n.Body):
		text = sender + ": " + n.Body
	case !isBlank(sender):
		text = sender
	case !isBlank(n.Body):
		text = n.Body
	default:
		text = "?"
	}
	s.sendNotification(text, notificationCode(n.Type))

	count := n.Vibrations
	if count < 0 {
		count = 1
	}
	if count > 0 {
		s.cmd(protocol.GloryFitOpVibrate, 0x00, 0x00, 0x00, 0x01, byte(min(count, 0xff)), 0x00, 0x00)
	}
	return nil
}

// sendNotification 内容按 UTF-16BE 编码并截断，首片携带类型与总长度，最后以 [c5 fd] 结束
func (s *Support) sendNotification(content string, typ byte) {
	payload := truncateUTF16BE(content, notificationMaxBytes)

	chunks := 0
	for pos := 0; pos < len(payload); chunks++ {
		args := []byte{byte(chunks)}
		if chunks == 0 {
			args = append(args, typ, byte(len(payload)))
		}
		// 操作码占 1 字节
		end := min(len(payload), pos+notificationChunk-1-len(args))
		args = append(args, payload[pos:end]...)
		s.cmd(protocol.GloryFitOpNotification, args...)
		pos = end
	}
	s.log.WithField("chunks", chunks).Debug("发送通知")
	s.cmd(protocol.GloryFitOpNotification, protocol.GloryFitFetchEnd)
}

func (s *Support) SetCallState(c inter.CallSpec) error {
	switch c.Command {
	case inter.CallOutgoing:
		return nil
	case inter.CallIncoming:
		var caller string
		switch {
		case !isBlank(c.Name) && !isBlank(c.Number):
			caller = c.Name + ": " + c.Number
		case !isBlank(c.Name):
			caller = c.Name
		case !isBlank(c.Number):
			caller = c.Number
		default:
			caller = "?"
		}
		s.sendNotification(caller, notificationCode(inter.NotificationCall))
		s.cmd(protocol.GloryFitOpVibrate, 0x00, 0x00, 0x00, 0x01, 0x0a, 0x02, 0x01)

		// 快捷回复的目标号码
		number := []byte(c.Number)
		s.cmd(protocol.GloryFitOpQuickReplyTo, append([]byte{quickReplyTarget, byte(len(number))}, number...)...)
	default:
		s.cmd(protocol.GloryFitOpCallStatus, callEnd)
	}
	return nil
}

// =============================================================================
// 闹钟 联系人 快捷回复
// =============================================================================

// 手表的星期位以周日为最低位
var alarmDays = []struct {
	from uint8
	to   byte
}{
	{inter.AlarmMon, 1 << 1},
	{inter.AlarmTue, 1 << 2},
	{inter.AlarmWed, 1 << 3},
	{inter.AlarmThu, 1 << 4},
	{inter.AlarmFri, 1 << 5},
	{inter.AlarmSat, 1 << 6},
	{inter.AlarmSun, 1 << 0},
}

func watchRepeatMask(rep uint8) byte {
	var mask byte
	for _, d := range alarmDays {
		if rep&d.from != 0 {
			mask |= d.to
		}
	}
	return mask
}

// SetAlarms 每个闹钟一条 9 字节记录，序号从 1 开始
func (s *Support) SetAlarms(alarms []inter.Alarm) error {
	if slots := s.Session().Profile().AlarmSlots; slots > 0 && len(alarms) > slots {
		s.log.Warnf("闹钟数量 %d 超过手表上限 %d，多余的忽略", len(alarms), slots)
		alarms = alarms[:slots]
	}
	for i, a := range alarms {
		args := []byte{watchRepeatMask(a.Repetition), byte(a.Hour), byte(a.Minute)}
		if a.Enabled {
			args = append(args, 0x02, 0x0a, 0x02)
		} else {
			args = append(args, 0x00, 0x00, 0x00)
		}
		args = append(args, 0x00, byte(i+1))
		s.cmd(protocol.GloryFitOpVibrate, args...)
	}
	return nil
}

// SetContacts 写入数据特征：开始、若干批次、结束
// 每个批次补零到固定长度，第 3 个字节是本批条数
func (s *Support) SetContacts(contacts []inter.Contact) error {
	chunkSize := s.Session().MTU() - 3
	if s.Session().MTU() < contactsMinMTU {
		s.log.WithField("mtu", s.Session().MTU()).Warn("MTU 过小，写入联系人可能失败")
		chunkSize = contactsFallbackMTU
	}

	entries := make([][]byte, 0, len(contacts))
	for _, c := range contacts {
		number := []byte(c.Number)
		if len(number) > contactNumberMax {
			s.log.Warnf("联系人号码长度 %d 过长，跳过", len(number))
			continue
		}
		name := truncateUTF16BE(c.Name, contactNameMax)
		e := make([]byte, 0, 4+len(number)+len(name))
		e = append(e, protocol.GloryFitOpContacts, contactsAdd, byte(len(number)), byte(len(name)))
		e = append(e, number...)
		entries = append(entries, append(e, name...))
	}
	s.log.WithField("count", len(entries)).Debug("写入联系人")

	s.data(protocol.GloryFitOpContacts, contactsStart, byte(len(entries)))

	buf := make([]byte, 0, chunkSize)
	added := 0
	flush := func() {
		chunk := make([]byte, chunkSize)
		copy(chunk, buf)
		chunk[2] = byte(added)
		s.data(protocol.GloryFitOpContacts, chunk[1:]...)
	}
	for _, e := range entries {
		if added == 0 {
			buf = append(buf[:0], protocol.GloryFitOpContacts, contactsAdd, 0)
		}
		if len(buf)+len(e) < chunkSize {
			buf = append(buf, e...)
			added++
			continue
		}
		flush()
		buf = append(buf[:0], protocol.GloryFitOpContacts, contactsAdd, 0)
		buf = append(buf, e...)
		added = 1
	}
	if added > 0 {
		flush()
	}

	s.data(protocol.GloryFitOpContacts, contactsEnd, 0xfd)
	return nil
}

// SetCannedMessages 每条最多 24 个字符，超出槽位数的忽略
func (s *Support) SetCannedMessages(messages []string) error {
	slots := s.Session().Profile().CannedReplySlots
	for i, m := range messages {
		if i >= slots {
			s.log.Warnf("快捷回复 %d 条，超过上限 %d", len(messages), slots)
			break
		}
		b := []byte(truncateRunes(m, cannedMessageMaxRunes))
		args := []byte{cannedMessagesSet, byte(len(messages)), byte(i), byte(len(b))}
		s.data(protocol.GloryFitOpCannedMessages, append(args, b...)...)
	}
	s.data(protocol.GloryFitOpCannedMessages, cannedMessagesEnd, 0x00)
	return nil
}

// =============================================================================
// 媒体 查找 相机 重置
// =============================================================================

// SetMusicState 状态未变化时不重复下发
func (s *Support) SetMusicState(m inter.MusicStateSpec) error {
	if s.lastMusicState != nil && *s.lastMusicState == m {
		return nil
	}
	s.lastMusicState = &m

	state := musicPaused
	if m.Playing {
		state = musicPlaying
	}
	args := []byte{musicState, state}
	for range 10 {
		args = append(args, 0xff)
	}
	s.data(protocol.GloryFitOpMusic, args...)
	s.cmd(protocol.GloryFitOpAction, actionMusicVolume, volumeByte(m.Volume))
	return nil
}

// SetMusicInfo 手表不显示曲目，只通知有媒体信息
func (s *Support) SetMusicInfo(m inter.MusicSpec) error {
	if s.lastMusicInfo != nil && *s.lastMusicInfo == m {
		return nil
	}
	s.lastMusicInfo = &m
	s.data(protocol.GloryFitOpMusic, musicInfo)
	return nil
}

func (s *Support) SetPhoneVolume(volume int) error {
	s.cmd(protocol.GloryFitOpAction, actionMusicVolume, volumeByte(volume))
	return nil
}

func volumeByte(v int) byte {
	return byte(clamp(v, 0, 100))
}

// FindDevice 手表只支持开始振动
func (s *Support) FindDevice(start bool) error {
	if !start {
		s.log.Debug("手表不支持停止查找，忽略")
		return nil
	}
	s.cmd(protocol.GloryFitOpVibrate, 0x00, 0x00, 0x00, 0x01, 0x02, 0x07, 0x01)
	return nil
}

// FindPhone 回应手表端的查找手机
func (s *Support) FindPhone(start bool) error {
	s.cmd(protocol.GloryFitOpAction, actionFindPhone, 0x01, boolByte(start))
	return nil
}

func (s *Support) SetCameraStatus(ev inter.CameraEvent) error {
	switch ev {
	case inter.CameraOpen:
		s.cmd(protocol.GloryFitOpCamera, cameraOpen)
	case inter.CameraClose:
		s.cmd(protocol.GloryFitOpCamera, cameraClose)
	default:
		s.log.Warnf("未知的相机状态 %d", ev)
	}
	return nil
}

func (s *Support) FactoryReset() error {
	s.log.Warn("恢复出厂设置")
	s.cmd(protocol.GloryFitOpFactoryReset)
	return nil
}

// =============================================================================
// 编码辅助
// =============================================================================

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// truncateUTF16BE 编码为 UTF-16BE，不超过 maxBytes 且不拆开代理对
func truncateUTF16BE(str string, maxBytes int) []byte {
	enc := utf16be.NewEncoder()
	out := make([]byte, 0, min(maxBytes, 2*len(str)))
	for _, r := range str {
		b, err := enc.Bytes([]byte(string(r)))
		if err != nil {
			continue
		}
		if len(out)+len(b) > maxBytes {
			break
		}
		out = append(out, b...)
	}
	return out
}

func truncateRunes(str string, n int) string {
	r := []rune(str)
	if len(r) <= n {
		return str
	}
	return string(r[:n])
}

func isBlank(str string) bool {
	return strings.TrimSpace(str) == ""
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}

func errShort(f inter.Frame) error {
	return fmt.Errorf("%w: %s 长度 %d 不足", inter.ErrMalformedPayload, f.Command, len(f.Payload))
}
