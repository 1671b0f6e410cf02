package cli

import (
	"errors"
	"fmt"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
)

// OnDeviceEvent 把设备事件写入日志
func (b *bridge) OnDeviceEvent(id string, ev inter.DeviceEvent) {
	entry := b.log.WithFields(logrus.Fields{"device": id, "event": ev.EventName()})
	switch e := ev.(type) {
	case inter.Toast:
		if e.Err != nil {
			entry.WithError(e.Err).Warn(e.Message)
		} else {
			entry.Info(e.Message)
		}
	case inter.StateChanged:
		entry.Infof("%s -> %s", e.From, e.To)
		if e.To == inter.StateInitialized && b.fetchOnConnect[id] {
			b.fetch(id)
		}
	case inter.FetchFinished:
		entry.WithFields(logrus.Fields{"run": e.RunID, "completed": e.Completed, "failed": e.Failed}).Info("拉取结束")
	default:
		entry.Info(fmt.Sprintf("%+v", ev))
	}
}

func (b *bridge) OnProgress(id string, p inter.Progress) {
	b.log.WithFields(logrus.Fields{"device": id, "percent": p.Percent, "ongoing": p.Ongoing}).Debug(p.Label)
}

func (b *bridge) fetch(id string) {
	s, ok := b.dm.Session(id)
	if !ok {
		return
	}
	err := s.FetchRecordedData(inter.TypeActivity | inter.TypeSpO2)
	switch {
	case errors.Is(err, inter.ErrNotSupported):
		b.log.WithField("device", id).Debug("设备不支持历史数据拉取")
	case err != nil:
		b.log.WithError(err).WithField("device", id).Warn("发起拉取失败")
	}
}
