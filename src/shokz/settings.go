package shokz

import (
	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
)

// 偏好设置键
const (
	PrefLanguage           = "language"
	PrefMediaSource        = "media_source"
	PrefMediaPlaybackMode  = "media_playback_mode"
	PrefEqualizerBluetooth = "shokz_equalizer_bluetooth"
	PrefEqualizerMp3       = "shokz_equalizer_mp3"
	PrefControlsLongPress  = "shokz_controls_long_press_multi_function"
	PrefControlsVolumeUpDn = "shokz_controls_simultaneous_volume_up_down"
)

// option 设备端编码与偏好取值的对应
type option struct {
	code byte
	name string
}

type optionSet []option

func (o optionSet) byCode(code byte) (option, bool) {
	for _, v := range o {
		if v.code == code {
			return v, true
		}
	}
	return option{}, false
}

func (o optionSet) byName(name string) (option, bool) {
	for _, v := range o {
		if v.name == name {
			return v, true
		}
	}
	return option{}, false
}

var (
	mediaSources = optionSet{{0x00, "bluetooth"}, {0x01, "mp3"}}
	equalizers   = optionSet{{0x00, "standard"}, {0x01, "vocal"}, {0x02, "swimming"}}
	playModes    = optionSet{{0x00, "normal"}, {0x01, "shuffle"}, {0x02, "repeat"}}
	playStatuses = optionSet{{0x00, "paused"}, {0x01, "playing"}}
	languages    = optionSet{{0x00, "en"}, {0x01, "zh_CN"}, {0x02, "ja"}, {0x03, "ko"}}
)

func playbackStatusByCode(code byte) (string, bool) {
	o, ok := playStatuses.byCode(code)
	return o.name, ok
}

// 按键组合: 长按多功能键 / 同时按音量加减
const (
	actionAssistant   = "assistant"
	actionMediaSource = "media_source"
)

type controls struct {
	code       byte
	longPress  string
	volumeUpDn string
}

var controlSets = []controls{
	{0x00, actionAssistant, actionMediaSource},
	{0x01, actionMediaSource, actionAssistant},
	{0x02, actionMediaSource, actionMediaSource},
	{0x03, actionAssistant, actionAssistant},
}

// vocalCurve 人声模式附带的均衡曲线
var vocalCurve = []byte{0xfc, 0x00, 0x03, 0x02, 0x02, 0x00, 0x00}

func (s *Support) attachSettings(d *device_manager.Dispatcher) {
	d.Handle(protocol.ShokzMediaSourceRet, s.handleMediaSourceRet)
	d.Handle(protocol.ShokzMediaSourceNotify, s.handleMediaSourceNotify)
	d.Handle(protocol.ShokzEqualizerRet, s.handleEqualizer)
	d.Handle(protocol.ShokzEqualizerAck, s.handleEqualizer)
	d.Handle(protocol.ShokzMp3PlaybackModeRet, s.handlePlaybackMode)
	d.Handle(protocol.ShokzControlsRet, s.handleControls)
	d.Handle(protocol.ShokzLanguageRet, s.handleLanguage)
}

// =============================================================================
// 设置读取
// =============================================================================

func (s *Support) handleMediaSourceRet(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	s.updateMediaSource(code)
	return nil
}

// handleMediaSourceNotify 设备上切换音源时主动上报，没有前导 0
func (s *Support) handleMediaSourceNotify(f inter.Frame) error {
	if len(f.Payload) < 1 {
		return errShort(f)
	}
	s.updateMediaSource(f.Payload[0])
	return nil
}

func (s *Support) updateMediaSource(code byte) {
	src, ok := mediaSources.byCode(code)
	if !ok {
		s.log.Warnf("未知音源 0x%02x", code)
		return
	}
	s.log.WithField("source", src.name).Info("音源")
	s.emitPrefs(map[string]string{PrefMediaSource: src.name})
}

// handleEqualizer 查询响应带前导 0，设置确认不带
// 均衡器按音源分别保存，键由当前音源决定
func (s *Support) handleEqualizer(f inter.Frame) error {
	var code byte
	if f.Command.Key == protocol.ShokzEqualizerRet {
		c, err := zeroThenCode(f)
		if err != nil {
			return err
		}
		code = c
	} else {
		if len(f.Payload) < 1 {
			return errShort(f)
		}
		code = f.Payload[0]
	}

	eq, ok := equalizers.byCode(code)
	if !ok {
		s.log.Warnf("未知均衡器 0x%02x", code)
		return nil
	}
	s.log.WithField("equalizer", eq.name).Info("均衡器")
	s.emitPrefs(map[string]string{s.equalizerKey(): eq.name})
	return nil
}

func (s *Support) equalizerKey() string {
	v := s.Session().Prefs().GetString(PrefMediaSource, "bluetooth")
	src, ok := mediaSources.byName(v)
	if !ok {
		s.log.Warnf("未知音源 %s，按 bluetooth 处理", v)
		src = mediaSources[0]
	}
	if src.name == "mp3" {
		return PrefEqualizerMp3
	}
	return PrefEqualizerBluetooth
}

func (s *Support) handlePlaybackMode(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	mode, ok := playModes.byCode(code)
	if !ok {
		s.log.Warnf("未知 MP3 播放模式 0x%02x", code)
		return nil
	}
	s.log.WithField("mode", mode.name).Info("MP3 播放模式")
	s.emitPrefs(map[string]string{PrefMediaPlaybackMode: mode.name})
	return nil
}

func (s *Support) handleControls(f inter.Frame) error {
	code, err := zeroThenCode(f)
	if err != nil {
		return err
	}
	for _, c := range controlSets {
		if c.code == code {
			s.log.WithField("code", code).Info("按键设置")
			s.emitPrefs(map[string]string{
				PrefControlsLongPress:  c.longPress,
				PrefControlsVolumeUpDn: c.volumeUpDn,
			})
			return nil
		}
	}
	s.log.Warnf("未知按键设置 0x%02x", code)
	return nil
}

// handleLanguage 语言响应以 u16 0 开头
func (s *Support) handleLanguage(f inter.Frame) error {
	if len(f.Payload) < 3 {
		return errShort(f)
	}
	code := f.Payload[2]
	lang, ok := languages.byCode(code)
	if !ok {
		s.log.Warnf("未知语言 0x%02x", code)
		return nil
	}
	s.log.WithField("language", lang.name).Info("提示音语言")
	s.emitPrefs(map[string]string{PrefLanguage: lang.name})
	return nil
}

func (s *Support) emitPrefs(values map[string]string) {
	s.Session().Emit(inter.PreferenceUpdate{Values: values})
}

// =============================================================================
// 设置写入
// =============================================================================

// SendConfiguration 把偏好中的值写到设备
func (s *Support) SendConfiguration(key string) error {
	switch key {
	case PrefLanguage:
		s.setLanguage()
	case PrefEqualizerBluetooth, PrefEqualizerMp3:
		s.setEqualizer(key)
	case PrefMediaSource:
		s.setOption(PrefMediaSource, mediaSources, protocol.ShokzMediaSourceSet)
	case PrefMediaPlaybackMode:
		s.setOption(PrefMediaPlaybackMode, playModes, protocol.ShokzMp3PlaybackModeSet)
	case PrefControlsLongPress, PrefControlsVolumeUpDn:
		s.setControls()
	default:
		return inter.ErrNotSupported
	}
	return nil
}

// setOption 读取偏好并写入单字节设置，未知取值回退到第一项
func (s *Support) setOption(pref string, set optionSet, key inter.CommandKey) {
	v := s.Session().Prefs().GetString(pref, set[0].name)
	o, ok := set.byName(v)
	if !ok {
		s.log.Warnf("%s 取值 %s 未知，回退到 %s", pref, v, set[0].name)
		o = set[0]
	}
	s.log.WithField(pref, o.name).Info("写入设置")
	s.enqueue(key, []byte{o.code, 0x00, 0x00, 0x00})
}

func (s *Support) setLanguage() {
	s.setOption(PrefLanguage, languages, protocol.ShokzLanguageSet)
}

func (s *Support) setEqualizer(pref string) {
	v := s.Session().Prefs().GetString(pref, "standard")
	eq, ok := equalizers.byName(v)
	if !ok {
		s.log.Warnf("均衡器 %s 未知，回退到 standard", v)
		eq = equalizers[0]
	}
	s.log.WithField("equalizer", eq.name).Info("写入均衡器")

	args := make([]byte, 8)
	args[0] = eq.code
	if eq.name == "vocal" {
		copy(args[1:], vocalCurve)
	}
	s.enqueue(protocol.ShokzEqualizerSet, args)
}

func (s *Support) setControls() {
	prefs := s.Session().Prefs()
	long := prefs.GetString(PrefControlsLongPress, "standard")
	updn := prefs.GetString(PrefControlsVolumeUpDn, "standard")

	chosen := controlSets[0]
	found := false
	for _, c := range controlSets {
		if c.longPress == long && c.volumeUpDn == updn {
			chosen, found = c, true
			break
		}
	}
	if !found {
		s.log.Warnf("按键设置 %s/%s 未知，回退到 %s/%s", long, updn, chosen.longPress, chosen.volumeUpDn)
	}
	s.enqueue(protocol.ShokzControlsSet, []byte{chosen.code, 0x00, 0x00, 0x00})
}
