package cli

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/DataStore"
	"github.com/nhirsama/Goster-Bridge/src/config"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/nhirsama/Goster-Bridge/src/shokz"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Simulation: 模拟外部设备
// =============================================================================

type simFrame struct {
	ch   inter.Channel
	data []byte
}

// simLink 模拟设备的公共部分：回包经独立 goroutine 串行投递
// Send 在会话锁内被调用，不能同步回调
type simLink struct {
	mu   sync.Mutex
	h    inter.TransportHandler
	out  chan simFrame
	quit chan struct{}
	done chan struct{}
	mtu  int
}

func (l *simLink) connect(h inter.TransportHandler) {
	l.mu.Lock()
	l.h = h
	l.out = make(chan simFrame, 256)
	l.quit = make(chan struct{})
	l.done = make(chan struct{})
	out, quit, done := l.out, l.quit, l.done
	l.mu.Unlock()

	h.OnConnected(l.mtu)
	go func() {
		defer close(done)
		for {
			select {
			case f := <-out:
				h.OnReceive(f.ch, f.data)
			case <-quit:
				return
			}
		}
	}()
}

func (l *simLink) reply(ch inter.Channel, data ...byte) {
	l.mu.Lock()
	out := l.out
	l.mu.Unlock()
	out <- simFrame{ch, data}
}

func (l *simLink) Close() error {
	l.mu.Lock()
	h, quit, done := l.h, l.quit, l.done
	l.h = nil
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	close(quit)
	<-done
	h.OnDisconnected(nil)
	return nil
}

// simHeadset 模拟 Shokz 耳机：对每个查询返回全零参数，固件版本为 1.2.3
type simHeadset struct {
	simLink
	decoder *protocol.ShokzCodec
	encoder *protocol.ShokzCodec
}

func newSimHeadset() *simHeadset {
	log := quietLogger()
	return &simHeadset{
		simLink: simLink{mtu: protocol.ShokzMaxFrameSize},
		decoder: protocol.NewShokzCodec(log),
		encoder: protocol.NewShokzCodec(log),
	}
}

func (s *simHeadset) Connect(_ context.Context, h inter.TransportHandler) error {
	s.connect(h)
	return nil
}

func (s *simHeadset) Send(ch inter.Channel, data []byte) error {
	for _, f := range s.decoder.Feed(ch, data) {
		resp, ok := protocol.ShokzRegistry.ResponseFor(f.Command)
		if !ok {
			continue
		}
		args := []byte{0, 0, 0, 0}
		if f.Command.Key == protocol.ShokzFirmwareGet {
			args = []byte{0, '1', '.', '2', '.', '3', 0}
		}
		frame, err := s.encoder.Encode(resp, args)
		if err != nil {
			return err
		}
		s.reply(inter.ChannelCommand, frame...)
	}
	return nil
}

// simWatch 模拟 GloryFit 手表：应答版本与电量，每类历史数据各返回一组记录
type simWatch struct {
	simLink
}

func newSimWatch() *simWatch {
	return &simWatch{simLink: simLink{mtu: protocol.GloryFitMTU}}
}

func (w *simWatch) Connect(_ context.Context, h inter.TransportHandler) error {
	w.connect(h)
	return nil
}

func (w *simWatch) Send(ch inter.Channel, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	cmd := inter.ChannelCommand
	switch op := data[0]; {
	case op == protocol.GloryFitOpVersion:
		w.reply(cmd, protocol.GloryFitOpVersion, 'V', '1', '.', '0')
	case op == protocol.GloryFitOpBattery:
		w.reply(cmd, protocol.GloryFitOpBattery, 85, 0)
	case op == protocol.GloryFitOpSteps && len(data) > 1 && data[1] == protocol.GloryFitFetchStart:
		// 2024-03-01 09 时，1200 步，其中跑步 300、步行 900
		w.reply(cmd, protocol.GloryFitOpSteps,
			0x07, 0xe8, 3, 1, 9, 0x04, 0xb0,
			10, 20, 0, 0x01, 0x2c,
			30, 50, 0, 0x03, 0x84)
		w.reply(cmd, protocol.GloryFitOpSteps, protocol.GloryFitFetchEnd, 0)
	case op == protocol.GloryFitOpHeartRate && len(data) > 1 && data[1] == protocol.GloryFitFetchStart:
		w.reply(cmd, protocol.GloryFitOpHeartRate,
			0x07, 0xe8, 3, 1, 10,
			60, 0, 62, 0xff, 64, 66, 0, 0, 70, 72, 0, 74)
		w.reply(cmd, protocol.GloryFitOpHeartRate, protocol.GloryFitFetchEnd, 0)
	case op == protocol.GloryFitOpSleepInfo && len(data) > 1 && data[1] == 0x01:
		w.reply(cmd, protocol.GloryFitOpSleepInfo, 0x01, 0x07, 0xe8, 3, 2, 2)
		w.reply(inter.ChannelData, protocol.GloryFitOpSleepStages,
			23, 10, 1, 0, 0x00, 0x3c,
			1, 30, 2, 0, 0x00, 0x5a)
		w.reply(cmd, protocol.GloryFitOpSleepInfo, 0x02)
	case op == protocol.GloryFitOpSpO2 && len(data) > 1 && data[1] == protocol.GloryFitFetchStart:
		w.reply(cmd, protocol.GloryFitOpSpO2,
			protocol.GloryFitFetchStart, 0x07, 0xe8, 3, 1, 11, 50,
			97, 98, 0, 96, 0, 0, 0, 0, 0, 0, 0, 99)
		w.reply(cmd, protocol.GloryFitOpSpO2, protocol.GloryFitFetchStart, protocol.GloryFitFetchEnd)
	}
	return nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// =============================================================================
// 测试
// =============================================================================

// 两台模拟设备经完整链路接入：配置、会话、设备族、SQLite 存储
func TestBridgeSimulation(t *testing.T) {
	store, err := DataStore.NewDataStoreSql(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := &config.Config{
		DeathLine: time.Minute,
		Families: map[string]config.FamilyConfig{
			config.FamilyGloryFit: {SupportsSpO2: true, MaxRetries: 3, FetchTimeout: 5 * time.Second},
		},
		Devices: []config.DeviceConfig{
			{Address: "AA:BB:CC:DD:EE:01", Family: config.FamilyShokz, Port: "/dev/rfcomm0"},
			{
				Address:        "AA:BB:CC:DD:EE:02",
				Family:         config.FamilyGloryFit,
				Name:           "手表",
				FetchOnConnect: true,
				Prefs:          map[string]any{"language": "en_US"},
			},
		},
	}

	headset, watch := newSimHeadset(), newSimWatch()
	b := newBridge(cfg, store, quietLogger())
	b.dial = func(d config.DeviceConfig) (inter.Transport, error) {
		if d.Family == config.FamilyShokz {
			return headset, nil
		}
		return watch, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.serve(ctx) }()

	headsetID := b.dm.GenerateID(config.FamilyShokz, "AA:BB:CC:DD:EE:01")
	watchID := b.dm.GenerateID(config.FamilyGloryFit, "AA:BB:CC:DD:EE:02")

	require.Eventually(t, func() bool {
		rec, err := store.LoadDevice(headsetID)
		return err == nil && rec.Firmware == "1.2.3"
	}, 5*time.Second, 10*time.Millisecond, "耳机固件版本未写入")

	require.Eventually(t, func() bool {
		_, ok, err := store.QueryLatest(watchID, inter.SampleSpO2)
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond, "手表历史数据未写入")

	status, err := b.dm.QueryDeviceStatus(watchID)
	require.NoError(t, err)
	assert.Equal(t, inter.StatusOnline, status)

	rec, err := store.LoadDevice(watchID)
	require.NoError(t, err)
	assert.Equal(t, "V1.0", rec.Firmware)
	assert.Equal(t, "手表", rec.Name)
	assert.Equal(t, 85, rec.BatteryLevel)
	assert.Equal(t, config.FamilyGloryFit, rec.Family)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	from, to := day.Add(-24*time.Hour).UnixMilli(), day.Add(48*time.Hour).UnixMilli()

	steps, err := store.QueryRange(watchID, inter.SampleSteps, from, to)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, int32(1200), steps[0].Value)
	assert.Equal(t, int32(300), steps[0].Details["running_steps"])

	hr, err := store.QueryRange(watchID, inter.SampleHeartRate, from, to)
	require.NoError(t, err)
	assert.Len(t, hr, 7)

	sleep, err := store.QueryRange(watchID, inter.SampleSleepStage, from, to)
	require.NoError(t, err)
	require.Len(t, sleep, 2)
	// 23:10 属于前一天晚上
	assert.Equal(t, time.Date(2024, 3, 1, 23, 10, 0, 0, time.Local).UnixMilli(), sleep[0].Timestamp)
	assert.Equal(t, time.Date(2024, 3, 2, 1, 30, 0, 0, time.Local).UnixMilli(), sleep[1].Timestamp)

	spo2, err := store.QueryRange(watchID, inter.SampleSpO2, from, to)
	require.NoError(t, err)
	assert.Len(t, spo2, 4)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve 没有退出")
	}
	_, ok := b.dm.Session(watchID)
	assert.False(t, ok, "退出后会话应被释放")
}

// 配置中的非零值覆盖设备族默认参数
func TestApplyFamilyConfig(t *testing.T) {
	cfg := &config.Config{
		Families: map[string]config.FamilyConfig{
			config.FamilyShokz: {
				Readiness:      "optimistic",
				CommandTimeout: 5 * time.Second,
				MaxRetries:     1,
			},
		},
	}
	store, err := DataStore.NewDataStoreSql(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	defer store.Close()

	b := newBridge(cfg, store, quietLogger())
	p := b.profiles[config.FamilyShokz]
	assert.EqualValues(t, "optimistic", p.Readiness)
	assert.Equal(t, 5*time.Second, p.CommandTimeout)
	assert.Equal(t, 1, p.MaxRetries)
	// 未配置的字段保留默认值
	assert.Equal(t, protocol.ShokzFirmwareRet, p.ReadyCommand)

	glory := b.profiles[config.FamilyGloryFit]
	assert.True(t, glory.SupportsSpO2)
	assert.Equal(t, 3, glory.MaxRetries)
	assert.Equal(t, 15*time.Minute, glory.BatteryPollInterval)
}

// 测试：max_retries 为 0 时关闭重试，不回退到默认值
func TestApplyFamilyConfig_NoRetries(t *testing.T) {
	p := applyFamilyConfig(shokz.DefaultProfile(), config.FamilyConfig{MaxRetries: 0, CommandTimeout: time.Second})
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, time.Second, p.CommandTimeout)
}
