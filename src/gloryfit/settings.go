package gloryfit

import (
	"encoding/binary"
	"math"
	"os"
	"strings"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// 偏好设置键
const (
	PrefSyncTime             = "sync_time"
	PrefSendAppNotifications = "send_app_notifications"
	PrefCallRejectMethod     = "call_reject_method"

	PrefHeightCm      = "activity_user_height_cm"
	PrefWeightKg      = "activity_user_weight_kg"
	PrefDateOfBirth   = "activity_user_date_of_birth"
	PrefGender        = "activity_user_gender"
	PrefStepsGoal     = "activity_user_steps_goal"
	PrefCaloriesGoal  = "activity_user_calories_burnt"
	PrefDistanceGoal  = "activity_user_distance_meters"
	PrefHRAlertHigh   = "heartrate_alert_threshold"
	PrefHRAlertLow    = "heartrate_alert_low_threshold"
	PrefLiftWrist     = "activate_display_on_lift_wrist_noshed"
	PrefMeasurement   = "measurement_system"
	PrefTimeFormat    = "timeformat"
	PrefLanguage      = "language"
	PrefHRAutomatic   = "heartrate_automatic_enable"
	PrefSmsQuickReply = "enable_sms_quick_reply"

	PrefInactivityEnable    = "inactivity_warnings_enable"
	PrefInactivityThreshold = "inactivity_warnings_threshold"
	PrefInactivityStart     = "inactivity_warnings_start"
	PrefInactivityEnd       = "inactivity_warnings_end"
	PrefInactivityDnd       = "inactivity_warnings_dnd"

	PrefSpO2AllDay   = "spo2_all_day_monitoring_enabled"
	PrefSpO2Interval = "spo2_measurement_interval"
	PrefSpO2Restrict = "spo2_measurement_time"
	PrefSpO2Start    = "spo2_measurement_start"
	PrefSpO2End      = "spo2_measurement_end"
)

// 子命令
const (
	goalCalories byte = 0x03
	goalSteps    byte = 0x04
	goalDistance byte = 0x05

	languageSet byte = 0xab

	heartRateOn  byte = 0x01
	heartRateOff byte = 0x02

	spo2Enabled byte = 0x03
	spo2Time    byte = 0x04

	callEnd byte = 0x04
)

// SendConfiguration 按偏好键写入对应设置
func (s *Support) SendConfiguration(key string) error {
	switch key {
	case PrefHeightCm, PrefWeightKg, PrefDateOfBirth, PrefGender, PrefHRAlertHigh, PrefHRAlertLow, PrefLiftWrist:
		s.setUserInfo()
	case PrefStepsGoal:
		// 用户信息里也带步数目标
		s.setUserInfo()
		s.setGoalSteps()
	case PrefCaloriesGoal:
		s.setGoalCalories()
	case PrefDistanceGoal:
		s.setGoalDistance()
	case PrefInactivityEnable, PrefInactivityThreshold, PrefInactivityStart, PrefInactivityEnd, PrefInactivityDnd:
		s.setSedentaryReminder()
	case PrefLanguage:
		s.setLanguage()
	case PrefMeasurement:
		// 用户信息里带温度单位
		s.setUserInfo()
		s.setUnits()
	case PrefTimeFormat:
		s.setUnits()
	case PrefHRAutomatic:
		s.setHeartRateMeasuring()
	case PrefSpO2AllDay, PrefSpO2Interval, PrefSpO2Restrict, PrefSpO2Start, PrefSpO2End:
		s.setSpO2Monitoring()
	case PrefSmsQuickReply:
		s.setSmsQuickReply()
	default:
		return inter.ErrNotSupported
	}
	return nil
}

func (s *Support) SetTime(t time.Time) error {
	if !s.Session().Prefs().GetBool(PrefSyncTime, true) {
		s.log.Debug("未开启时间同步，忽略")
		return nil
	}
	s.setTime(t)
	return nil
}

func (s *Support) setTime(t time.Time) {
	s.log.WithField("time", t.Format(time.DateTime)).Debug("设置时间")
	args := binary.BigEndian.AppendUint16(nil, uint16(t.Year()))
	args = append(args, byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
	s.cmd(protocol.GloryFitOpDateTime, args...)
}

func (s *Support) setUserInfo() {
	p := s.Session().Prefs()
	now := s.Session().Now()

	height := clamp(p.GetInt(PrefHeightCm, 175), 91, 241)
	weight := clamp(p.GetInt(PrefWeightKg, 70), 20, 255)
	steps := stepsGoal(p.GetInt(PrefStepsGoal, 8000))
	age := clamp(ageAt(p.GetString(PrefDateOfBirth, "1990-01-01"), now), 3, 100)

	hrHigh := byte(0xff)
	if v := p.GetInt(PrefHRAlertHigh, 0); v > 0 {
		hrHigh = byte(clamp(v, 100, 200))
	}
	hrLow := byte(0x00)
	if v := p.GetInt(PrefHRAlertLow, 0); v > 0 {
		hrLow = byte(clamp(v, 40, 100))
	}

	gender := byte(0x01)
	if p.GetString(PrefGender, "other") == "female" {
		gender = 0x02
	}
	// 0x02 摄氏 0x01 华氏
	temperature := byte(0x01)
	if metric(p) {
		temperature = 0x02
	}

	s.log.WithFields(logrus.Fields{"height": height, "weight": weight, "age": age}).Debug("设置用户信息")

	args := make([]byte, 0, 18)
	args = binary.BigEndian.AppendUint16(args, uint16(height))
	args = binary.BigEndian.AppendUint16(args, uint16(weight))
	args = append(args, 0x05, 0x00, 0x00)
	args = binary.BigEndian.AppendUint16(args, uint16(steps))
	args = append(args,
		boolByte(p.GetBool(PrefLiftWrist, false)),
		hrHigh,
		0x00,
		byte(age),
		gender,
		0x00,
		temperature,
		0x01,
		hrLow,
	)
	s.cmd(protocol.GloryFitOpUserInfo, args...)
}

func (s *Support) setGoalSteps() {
	steps := stepsGoal(s.Session().Prefs().GetInt(PrefStepsGoal, 8000))
	s.log.WithField("steps", steps).Debug("设置步数目标")
	s.cmd(protocol.GloryFitOpGoals, binary.BigEndian.AppendUint16([]byte{goalSteps, 0x01, 0x00, 0x00}, uint16(steps))...)
}

// setGoalCalories 卡路里目标只有 5 字节有效内容，末尾补 0
func (s *Support) setGoalCalories() {
	cal := clamp(roundTo(s.Session().Prefs().GetInt(PrefCaloriesGoal, 350), 50), 50, 1000)
	s.log.WithField("calories", cal).Debug("设置卡路里目标")
	args := binary.BigEndian.AppendUint16([]byte{goalCalories, 0x01}, uint16(cal))
	s.cmd(protocol.GloryFitOpGoals, append(args, 0x00, 0x00)...)
}

func (s *Support) setGoalDistance() {
	dist := clamp(roundTo(s.Session().Prefs().GetInt(PrefDistanceGoal, 5000), 1000), 1000, 20000)
	s.log.WithField("distance", dist).Debug("设置距离目标")
	s.cmd(protocol.GloryFitOpGoals, binary.BigEndian.AppendUint16([]byte{goalDistance, 0x01, 0x00, 0x00}, uint16(dist))...)
}

// setSedentaryReminder 午休免打扰固定为 12:00-14:00
func (s *Support) setSedentaryReminder() {
	p := s.Session().Prefs()
	enabled := p.GetBool(PrefInactivityEnable, false)
	start := s.clockPref(PrefInactivityStart, "06:00")
	end := s.clockPref(PrefInactivityEnd, "22:00")
	duration := clamp(roundTo(p.GetInt(PrefInactivityThreshold, 60), 5), 30, 180)
	lunch := p.GetBool(PrefInactivityDnd, false)

	s.log.WithFields(logrus.Fields{
		"enabled":  enabled,
		"start":    start.Format("15:04"),
		"end":      end.Format("15:04"),
		"duration": duration,
		"lunch":    lunch,
	}).Debug("设置久坐提醒")

	args := []byte{boolByte(enabled), byte(duration), 0x02, 0x03, 0x01, 0x00}
	if end.After(start) {
		args = append(args, byte(start.Hour()), byte(start.Minute()), byte(end.Hour()), byte(end.Minute()))
	} else {
		args = append(args, byte(end.Hour()), byte(end.Minute()), byte(start.Hour()), byte(start.Minute()))
	}
	args = append(args, boolByte(lunch))
	s.cmd(protocol.GloryFitOpSedentary, args...)
}

func (s *Support) setLanguage() {
	v := s.Session().Prefs().GetString(PrefLanguage, "auto")
	code := s.languageCode(v)
	s.log.WithFields(logrus.Fields{"locale": v, "code": code}).Debug("设置语言")
	s.cmd(protocol.GloryFitOpLanguage, languageSet, code)
}

func (s *Support) setUnits() {
	p := s.Session().Prefs()
	isMetric := metric(p)
	is24h := p.GetString(PrefTimeFormat, "24h") == "24h"
	s.log.WithFields(logrus.Fields{"metric": isMetric, "24h": is24h}).Debug("设置单位")

	unit, hours := byte(0x02), byte(0x02)
	if isMetric {
		unit = 0x01
	}
	if is24h {
		hours = 0x01
	}
	s.cmd(protocol.GloryFitOpUnits, unit, hours)
}

func (s *Support) setHeartRateMeasuring() {
	enabled := s.Session().Prefs().GetBool(PrefHRAutomatic, false)
	s.log.WithField("enabled", enabled).Debug("设置心率自动测量")
	mode := heartRateOff
	if enabled {
		mode = heartRateOn
	}
	s.cmd(protocol.GloryFitOpHeartRate, mode)
}

// setSpO2Monitoring 开关与测量时段分两条命令写入
func (s *Support) setSpO2Monitoring() {
	p := s.Session().Prefs()
	enabled := p.GetBool(PrefSpO2AllDay, false)
	intervalSec := p.GetInt(PrefSpO2Interval, 600)
	restrict := p.GetBool(PrefSpO2Restrict, false)
	start := s.clockPref(PrefSpO2Start, "06:00")
	end := s.clockPref(PrefSpO2End, "22:00")

	s.log.WithFields(logrus.Fields{
		"enabled":  enabled,
		"interval": intervalSec,
		"restrict": restrict,
	}).Debug("设置血氧监测")

	s.cmd(protocol.GloryFitOpSpO2, binary.BigEndian.AppendUint16([]byte{spo2Enabled, boolByte(enabled)}, uint16(intervalSec/60))...)
	s.cmd(protocol.GloryFitOpSpO2,
		spo2Time,
		boolByte(restrict),
		byte(start.Hour()), byte(start.Minute()),
		byte(end.Hour()), byte(end.Minute()),
	)
}

// setCallRejectButton 关闭后手表仍显示按钮且会卡死，所以总是开启
func (s *Support) setCallRejectButton() {
	s.cmd(protocol.GloryFitOpCallReject, 0x08, 0x16, 0x00, 0x08, 0x00, 0x01)
}

func (s *Support) setSmsQuickReply() {
	enabled := s.Session().Prefs().GetBool(PrefSmsQuickReply, true)
	s.log.WithField("enabled", enabled).Debug("设置短信快捷回复")
	s.cmd(protocol.GloryFitOpSmsQuickReply, boolByte(enabled))
}

// =============================================================================
// 语言
// =============================================================================

type watchLanguage struct {
	tag  language.Tag
	code byte
}

// 第一项同时是匹配失败时的回退
var watchLanguages = []watchLanguage{
	{language.English, 0x01},
	{language.SimplifiedChinese, 0x02},
	{language.TraditionalChinese, 0x03},
	{language.Japanese, 0x04},
	{language.Korean, 0x05},
	{language.German, 0x06},
	{language.French, 0x07},
	{language.Spanish, 0x08},
	{language.Italian, 0x09},
	{language.Portuguese, 0x0a},
	{language.Russian, 0x0b},
}

var languageMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(watchLanguages))
	for i, l := range watchLanguages {
		tags[i] = l.tag
	}
	return language.NewMatcher(tags)
}()

// languageCode 把 "zh_CN" 形式的区域设置映射到手表语言码
// "auto" 取运行环境的 LANG
func (s *Support) languageCode(locale string) byte {
	if isBlank(locale) || locale == "auto" {
		locale = os.Getenv("LANG")
		if i := strings.IndexByte(locale, '.'); i >= 0 {
			locale = locale[:i]
		}
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		s.log.Warnf("无法识别语言 %q，使用英语", locale)
		return watchLanguages[0].code
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		s.log.Warnf("手表不支持语言 %s，使用英语", tag)
		return watchLanguages[0].code
	}
	return watchLanguages[idx].code
}

// =============================================================================
// 辅助函数
// =============================================================================

func (s *Support) clockPref(key, def string) time.Time {
	v := s.Session().Prefs().GetString(key, def)
	t, err := time.Parse("15:04", v)
	if err != nil {
		s.log.Warnf("%s 时间格式无效: %q，使用 %s", key, v, def)
		t, _ = time.Parse("15:04", def)
	}
	return t
}

func metric(p inter.Preferences) bool {
	return p.GetString(PrefMeasurement, "metric") == "metric"
}

func stepsGoal(v int) int {
	return clamp(roundTo(v, 1000), 1000, 30000)
}

func ageAt(dob string, now time.Time) int {
	birth, err := time.Parse(time.DateOnly, dob)
	if err != nil {
		return 0
	}
	age := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		age--
	}
	return age
}

// roundTo 四舍五入到 step 的整数倍
func roundTo(v, step int) int {
	return int(math.Round(float64(v)/float64(step))) * step
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
