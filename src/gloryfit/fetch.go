package gloryfit

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

const (
	sleepInfoDate byte = 0x01
	sleepInfoEnd  byte = 0x02

	// 心率与血氧按 10 分钟一格，每帧 12 格
	slotMinutes    = 10
	slotsPerRecord = 12

	stepsRecordLen = 17
	hrRecordLen    = 17
	spo2RecordLen  = 19
	sleepStageLen  = 6
)

// sleepSession 正在接收的一段睡眠
type sleepSession struct {
	active        bool
	date          time.Time
	afterMidnight bool // 本段已经出现过 12 点以前的记录
}

func (s *Support) attachFetch(d *device_manager.Dispatcher) {
	d.Handle(op(protocol.GloryFitOpSteps), s.handleSteps)
	d.Handle(op(protocol.GloryFitOpHeartRate), s.handleHeartRate)
	d.Handle(op(protocol.GloryFitOpSpO2), s.handleSpO2)
	d.Handle(op(protocol.GloryFitOpSleepInfo), s.handleSleepInfo)
	d.Handle(op(protocol.GloryFitOpSleepStages), s.handleSleepStages)
}

// FetchRecordedData 活动数据依次拉取步数、心率、睡眠，血氧单独一类
func (s *Support) FetchRecordedData(mask inter.DataTypeMask) error {
	var jobs []*device_manager.FetchJob
	if mask&inter.TypeActivity != 0 {
		jobs = append(jobs,
			fetchJob(inter.SampleSteps, "同步步数", protocol.GloryFitOpSteps, protocol.GloryFitFetchStart),
			fetchJob(inter.SampleHeartRate, "同步心率", protocol.GloryFitOpHeartRate, protocol.GloryFitFetchStart),
			fetchJob(inter.SampleSleepStage, "同步睡眠", protocol.GloryFitOpSleepInfo, sleepInfoDate),
		)
	}
	if mask&inter.TypeSpO2 != 0 && s.Session().Profile().SupportsSpO2 {
		jobs = append(jobs, fetchJob(inter.SampleSpO2, "同步血氧", protocol.GloryFitOpSpO2, protocol.GloryFitFetchStart))
	}
	if len(jobs) == 0 {
		s.log.WithField("mask", fmt.Sprintf("0x%x", uint32(mask))).Debug("没有可拉取的数据类型")
		return nil
	}
	s.Session().Fetcher().Enqueue(jobs...)
	return nil
}

func fetchJob(kind inter.SampleKind, label string, opcode byte, sub byte) *device_manager.FetchJob {
	return &device_manager.FetchJob{
		Kind:    kind,
		Label:   label,
		Channel: inter.ChannelCommand,
		Command: op(opcode),
		Args:    []byte{sub},
	}
}

// readDate 大端年份、月、日，当天零点 (本地时区)
func readDate(b []byte) time.Time {
	year := int(binary.BigEndian.Uint16(b))
	return time.Date(year, time.Month(b[2]), int(b[3]), 0, 0, 0, 0, time.Local)
}

// =============================================================================
// 步数
// =============================================================================

// handleSteps 每帧一小时
//
//	日期(4) 小时 总步数(2) 跑步起 跑步止 ? 跑步步数(2) 步行起 步行止 ? 步行步数(2)
func (s *Support) handleSteps(f inter.Frame) error {
	p := f.Payload
	switch {
	case len(p) == 2 && p[0] == protocol.GloryFitFetchEnd:
		s.log.Debug("步数拉取结束")
		s.Session().Fetcher().Complete(inter.SampleSteps)
	case len(p) == stepsRecordLen:
		ts := readDate(p).Add(time.Duration(p[4]) * time.Hour)
		sample := inter.Sample{
			Timestamp: ts.UnixMilli(),
			Value:     int32(binary.BigEndian.Uint16(p[5:])),
			Duration:  int32(time.Hour / time.Second),
			Details: map[string]int32{
				"running_start": int32(p[7]),
				"running_end":   int32(p[8]),
				"running_steps": int32(binary.BigEndian.Uint16(p[10:])),
				"walking_start": int32(p[12]),
				"walking_end":   int32(p[13]),
				"walking_steps": int32(binary.BigEndian.Uint16(p[15:])),
			},
		}
		s.log.WithFields(logrus.Fields{"time": ts.Format(time.DateTime), "steps": sample.Value}).Debug("步数")
		s.Session().Fetcher().Persist(inter.SampleSteps, []inter.Sample{sample})
	default:
		s.log.WithField("payload", hexString(p)).Warn("未知的步数帧")
	}
	return nil
}

// =============================================================================
// 心率 / 血氧
// =============================================================================

// slotSamples 12 个 10 分钟格，最后一格落在 last，0 与 0xff 表示无数据
func slotSamples(last time.Time, values []byte) []inter.Sample {
	ts := last.Add(-time.Duration(slotMinutes*(len(values)-1)) * time.Minute)
	out := make([]inter.Sample, 0, len(values))
	for _, v := range values {
		if v != 0 && v != 0xff {
			out = append(out, inter.Sample{Timestamp: ts.UnixMilli(), Value: int32(v)})
		}
		ts = ts.Add(slotMinutes * time.Minute)
	}
	return out
}

// handleHeartRate 数据帧: 07 开头的日期(4) 小时 12 格
// 首字节与年份高位重合
func (s *Support) handleHeartRate(f inter.Frame) error {
	p := f.Payload
	switch {
	case len(p) == hrRecordLen && p[0] == protocol.GloryFitFetchData:
		hour := readDate(p).Add(time.Duration(p[4]) * time.Hour)
		samples := slotSamples(hour, p[5:5+slotsPerRecord])
		s.log.WithField("count", len(samples)).Debug("写入心率样本")
		s.Session().Fetcher().Persist(inter.SampleHeartRate, samples)
	case len(p) == 2 && p[0] == protocol.GloryFitFetchEnd:
		s.log.Debug("心率拉取结束")
		s.Session().Fetcher().Complete(inter.SampleHeartRate)
	default:
		s.log.WithField("payload", hexString(p)).Warn("未处理的心率帧")
	}
	return nil
}

// handleSpO2 数据帧: fa 日期(4) 小时 分钟 12 格
func (s *Support) handleSpO2(f inter.Frame) error {
	p := f.Payload
	if len(p) < 2 {
		s.log.WithField("payload", hexString(p)).Warn("未处理的血氧帧")
		return nil
	}
	switch p[1] {
	case protocol.GloryFitFetchData:
		if len(p) != spo2RecordLen {
			return fmt.Errorf("%w: 血氧数据长度 %d", inter.ErrMalformedPayload, len(p)+1)
		}
		last := readDate(p[1:]).Add(time.Duration(p[5])*time.Hour + time.Duration(p[6])*time.Minute)
		samples := slotSamples(last, p[7:7+slotsPerRecord])
		s.log.WithField("count", len(samples)).Debug("写入血氧样本")
		s.Session().Fetcher().Persist(inter.SampleSpO2, samples)
	case protocol.GloryFitFetchEnd:
		s.log.Debug("血氧拉取结束")
		s.Session().Fetcher().Complete(inter.SampleSpO2)
	default:
		s.log.WithField("payload", hexString(p)).Warn("未处理的血氧帧")
	}
	return nil
}

// =============================================================================
// 睡眠
// =============================================================================

// handleSleepInfo 日期帧打开一段睡眠，结束帧关闭并完成任务
func (s *Support) handleSleepInfo(f inter.Frame) error {
	p := f.Payload
	if len(p) < 1 {
		return errShort(f)
	}
	switch p[0] {
	case sleepInfoDate:
		if len(p) < 6 {
			return errShort(f)
		}
		s.sleep = sleepSession{active: true, date: readDate(p[1:])}
		s.log.WithFields(logrus.Fields{
			"date":   s.sleep.date.Format(time.DateOnly),
			"stages": p[5],
		}).Debug("睡眠日期")
	case sleepInfoEnd:
		s.log.Debug("睡眠拉取结束")
		s.sleep = sleepSession{}
		s.Session().Fetcher().Complete(inter.SampleSleepStage)
	default:
		s.log.WithField("payload", hexString(p)).Warn("未知的睡眠信息帧")
	}
	return nil
}

// handleSleepStages 每条 6 字节: 时 分 阶段 ? 时长(2)
//
// 记录只带时分。大于 12 点的记录视为前一天，直到本段出现第一条 12 点以前的记录，
// 之后的记录都不再回退。这只是推测，跨越正午的睡眠会被算错。
func (s *Support) handleSleepStages(f inter.Frame) error {
	if !s.sleep.active {
		s.log.Error("收到睡眠阶段，但睡眠日期未知")
		return nil
	}
	p := f.Payload
	if len(p)%sleepStageLen != 0 {
		return fmt.Errorf("%w: 睡眠阶段长度 %d", inter.ErrMalformedPayload, len(p)+1)
	}

	samples := make([]inter.Sample, 0, len(p)/sleepStageLen)
	for ; len(p) > 0; p = p[sleepStageLen:] {
		hour, minute := int(p[0]), int(p[1])
		day := s.sleep.date
		if hour > 12 {
			if !s.sleep.afterMidnight {
				day = day.AddDate(0, 0, -1)
			}
		} else {
			s.sleep.afterMidnight = true
		}
		ts := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.Local)
		samples = append(samples, inter.Sample{
			Timestamp: ts.UnixMilli(),
			Value:     int32(p[2]),
			Duration:  int32(binary.BigEndian.Uint16(p[4:])),
		})
	}
	s.log.WithField("count", len(samples)).Debug("写入睡眠阶段")
	s.Session().Fetcher().Persist(inter.SampleSleepStage, samples)
	return nil
}
