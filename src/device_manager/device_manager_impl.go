package device_manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/sirupsen/logrus"
)

// deviceNamespace 设备 ID 的 UUIDv5 命名空间
var deviceNamespace = uuid.MustParse("6f1c3a52-8d0e-4f6b-9a57-2b8c1e4d7a90")

// Family 一个设备族的构造器与默认参数
type Family struct {
	New     func() Support
	Profile Profile
}

// DeviceManager 管理所有设备会话
type DeviceManager struct {
	DataStore inter.DataStore

	families map[string]Family
	sessions sync.Map // map[string]*Session

	sink     inter.EventSink
	progress inter.ProgressReporter
	clock    Clock
	log      *logrus.Entry

	// DeathLine 超过该时长未收到任何帧视为延迟
	DeathLine time.Duration
}

var _ inter.DeviceManager = (*DeviceManager)(nil)

func NewDeviceManager(ds inter.DataStore, sink inter.EventSink, progress inter.ProgressReporter, log *logrus.Entry) *DeviceManager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DeviceManager{
		DataStore: ds,
		families:  make(map[string]Family),
		sink:      sink,
		progress:  progress,
		clock:     SystemClock(),
		log:       log.WithField("component", "manager"),
		DeathLine: 60 * time.Second, // 默认 60s 无数据视为延迟
	}
}

// SetClock 替换会话使用的时钟，仅在创建会话前调用
func (d *DeviceManager) SetClock(c Clock) { d.clock = c }

// RegisterFamily 注册设备族，重复注册时覆盖
func (d *DeviceManager) RegisterFamily(name string, f Family) {
	d.families[name] = f
}

// Families 已注册的设备族
func (d *DeviceManager) Families() []string {
	out := make([]string, 0, len(d.families))
	for name := range d.families {
		out = append(out, name)
	}
	return out
}

// --- 身份与生命周期实现 ---

// GenerateID 由族名与地址派生设备 ID，同一设备生成的 ID 固定
func (d *DeviceManager) GenerateID(family, address string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(family+"|"+address)).String()
}

// Open 创建会话并连接设备
// name 非空时写入设备记录；profile 非零值时覆盖族内默认参数
func (d *DeviceManager) Open(ctx context.Context, family, address, name string, t inter.Transport, prefs inter.Preferences, profile *Profile) (*Session, error) {
	fam, ok := d.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inter.ErrUnknownFamily, family)
	}
	id := d.GenerateID(family, address)
	if _, exists := d.sessions.Load(id); exists {
		return nil, fmt.Errorf("device_manager: 设备 %s 已有会话", address)
	}

	if err := d.touchRecord(id, family, address, name); err != nil {
		return nil, err
	}

	p := fam.Profile
	if profile != nil {
		p = *profile
	}
	s, err := NewSession(SessionConfig{
		DeviceID:  id,
		Address:   address,
		Support:   fam.New(),
		Transport: t,
		Profile:   p,
		Store:     d.DataStore,
		Prefs:     prefs,
		Events:    d,
		Progress:  d.progress,
		Clock:     d.clock,
		Logger:    d.log.Logger.WithField("address", address),
	})
	if err != nil {
		return nil, err
	}
	d.sessions.Store(id, s)

	if err := s.Connect(ctx); err != nil {
		d.sessions.Delete(id)
		_ = s.Dispose()
		return nil, err
	}
	return s, nil
}

func (d *DeviceManager) touchRecord(id, family, address, name string) error {
	rec, err := d.DataStore.LoadDevice(id)
	switch {
	case errors.Is(err, inter.ErrDeviceNotFound):
		rec = inter.DeviceRecord{
			ID:           id,
			Address:      address,
			Family:       family,
			BatteryLevel: -1,
			CreatedAt:    time.Now(),
		}
	case err != nil:
		return err
	}
	if name != "" {
		rec.Name = name
	}
	rec.LastSeen = time.Now()
	return d.DataStore.SaveDevice(rec)
}

// Session 按 ID 查找会话
func (d *DeviceManager) Session(id string) (*Session, bool) {
	v, ok := d.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Close 释放会话
func (d *DeviceManager) Close(id string) error {
	v, ok := d.sessions.LoadAndDelete(id)
	if !ok {
		return inter.ErrDeviceNotFound
	}
	return v.(*Session).Dispose()
}

// CloseAll 释放全部会话，返回遇到的第一个错误
func (d *DeviceManager) CloseAll() error {
	var first error
	d.sessions.Range(func(key, _ any) bool {
		if err := d.Close(key.(string)); err != nil && first == nil {
			first = err
		}
		return true
	})
	return first
}

func (d *DeviceManager) DeleteDevice(id string) error {
	if err := d.Close(id); err != nil && !errors.Is(err, inter.ErrDeviceNotFound) {
		d.log.WithError(err).Warn("关闭会话失败")
	}
	return d.DataStore.DestroyDevice(id)
}

func (d *DeviceManager) GetDevice(id string) (inter.DeviceRecord, error) {
	return d.DataStore.LoadDevice(id)
}

func (d *DeviceManager) ListDevices(page, size int) ([]inter.DeviceRecord, error) {
	return d.DataStore.ListDevices(page, size)
}

// --- 运行时状态实现 ---

func (d *DeviceManager) QueryDeviceStatus(id string) (inter.DeviceStatus, error) {
	s, ok := d.Session(id)
	if !ok {
		return inter.StatusOffline, errors.New("设备未连接")
	}
	switch s.State() {
	case inter.StateDisconnected, inter.StateConnecting:
		return inter.StatusOffline, nil
	}
	last := s.LastFrame()
	if last.IsZero() || d.clock.Now().Sub(last) >= d.DeathLine {
		return inter.StatusDelayed, nil
	}
	return inter.StatusOnline, nil
}

// OnDeviceEvent 更新设备记录后转发给下游
func (d *DeviceManager) OnDeviceEvent(id string, ev inter.DeviceEvent) {
	switch e := ev.(type) {
	case inter.VersionInfo:
		d.updateRecord(id, func(r *inter.DeviceRecord) {
			if e.Firmware != "" {
				r.Firmware = e.Firmware
			}
			if e.Hardware != "" {
				r.Hardware = e.Hardware
			}
		})
	case inter.BatteryInfo:
		d.updateRecord(id, func(r *inter.DeviceRecord) { r.BatteryLevel = e.Level })
	case inter.StateChanged:
		if e.To == inter.StateInitialized {
			d.updateRecord(id, func(*inter.DeviceRecord) {})
		}
	}
	if d.sink != nil {
		d.sink.OnDeviceEvent(id, ev)
	}
}

func (d *DeviceManager) updateRecord(id string, mutate func(r *inter.DeviceRecord)) {
	rec, err := d.DataStore.LoadDevice(id)
	if err != nil {
		d.log.WithError(err).WithField("device", id).Warn("读取设备记录失败")
		return
	}
	mutate(&rec)
	rec.LastSeen = time.Now()
	if err := d.DataStore.SaveDevice(rec); err != nil {
		d.log.WithError(err).WithField("device", id).Warn("更新设备记录失败")
	}
}
