package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/DataStore"
	"github.com/nhirsama/Goster-Bridge/src/config"
	"github.com/nhirsama/Goster-Bridge/src/device_manager"
	"github.com/nhirsama/Goster-Bridge/src/gloryfit"
	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/shokz"
	"github.com/nhirsama/Goster-Bridge/src/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// reconnectDelay 连接失败或掉线后的重试间隔
const reconnectDelay = 10 * time.Second

func Run() {
	fs := pflag.NewFlagSet("goster-bridge", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("系统正常关闭")
}

func run(ctx context.Context, fs *pflag.FlagSet) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer closer.Close()

	store, err := DataStore.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer store.Close()

	b := newBridge(cfg, store, logrus.NewEntry(logger))
	return b.serve(ctx)
}

// bridge 把配置中的设备接入 DeviceManager 并维持连接
type bridge struct {
	cfg *config.Config
	dm  *device_manager.DeviceManager
	log *logrus.Entry

	adapter  *transport.Adapter
	dial     func(d config.DeviceConfig) (inter.Transport, error)
	profiles map[string]device_manager.Profile
	// fetchOnConnect 需要在就绪后拉取历史数据的设备 ID
	fetchOnConnect map[string]bool
}

func newBridge(cfg *config.Config, store inter.DataStore, log *logrus.Entry) *bridge {
	b := &bridge{
		cfg:            cfg,
		log:            log,
		profiles:       make(map[string]device_manager.Profile),
		fetchOnConnect: make(map[string]bool),
	}
	b.dial = b.newTransport
	b.dm = device_manager.NewDeviceManager(store, b, b, log)
	if cfg.DeathLine > 0 {
		b.dm.DeathLine = cfg.DeathLine
	}

	families := map[string]device_manager.Family{
		config.FamilyShokz:    {New: shokz.New, Profile: shokz.DefaultProfile()},
		config.FamilyGloryFit: {New: gloryfit.New, Profile: gloryfit.DefaultProfile()},
	}
	for name, fam := range families {
		if fc, ok := cfg.Families[name]; ok {
			fam.Profile = applyFamilyConfig(fam.Profile, fc)
		}
		b.profiles[name] = fam.Profile
		b.dm.RegisterFamily(name, fam)
	}

	for _, d := range cfg.Devices {
		if d.FetchOnConnect {
			b.fetchOnConnect[b.dm.GenerateID(d.Family, d.Address)] = true
		}
	}
	return b
}

// applyFamilyConfig 配置中的非零值覆盖族内默认参数，重试次数与血氧能力总是取配置值
func applyFamilyConfig(p device_manager.Profile, fc config.FamilyConfig) device_manager.Profile {
	if fc.Readiness != "" {
		p.Readiness = device_manager.Readiness(fc.Readiness)
	}
	if fc.InitFailure != "" {
		p.InitFailure = device_manager.InitFailurePolicy(fc.InitFailure)
	}
	if fc.CommandTimeout > 0 {
		p.CommandTimeout = fc.CommandTimeout
	}
	// 0 表示不重试
	p.MaxRetries = fc.MaxRetries
	if fc.InitFailureLimit > 0 {
		p.InitFailureLimit = fc.InitFailureLimit
	}
	if fc.MTU > 0 {
		p.MTU = fc.MTU
	}
	if fc.FetchTimeout > 0 {
		p.FetchTimeout = fc.FetchTimeout
	}
	if fc.BatteryPollInterval > 0 {
		p.BatteryPollInterval = fc.BatteryPollInterval
	}
	if fc.CannedReplySlots > 0 {
		p.CannedReplySlots = fc.CannedReplySlots
	}
	if fc.AlarmSlots > 0 {
		p.AlarmSlots = fc.AlarmSlots
	}
	p.SupportsSpO2 = fc.SupportsSpO2
	return p
}

func (b *bridge) newTransport(d config.DeviceConfig) (inter.Transport, error) {
	log := b.log.WithField("device", d.Address)
	switch d.Family {
	case config.FamilyShokz:
		return transport.NewRFCOMM(d.Port, log), nil
	case config.FamilyGloryFit:
		if b.adapter == nil {
			a, err := transport.NewAdapter(nil, b.log)
			if err != nil {
				return nil, err
			}
			b.adapter = a
		}
		return transport.NewBLE(b.adapter, d.Address, transport.GloryFitLayout(), log), nil
	default:
		return nil, fmt.Errorf("%w: %s", inter.ErrUnknownFamily, d.Family)
	}
}

// serve 为每台设备启动一个连接循环，ctx 结束后释放全部会话
func (b *bridge) serve(ctx context.Context) error {
	if len(b.cfg.Devices) == 0 {
		b.log.Warn("配置中没有设备")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range b.cfg.Devices {
		t, err := b.dial(d)
		if err != nil {
			return err
		}
		g.Go(func() error { return b.keepConnected(gctx, d, t) })
	}
	err := g.Wait()
	if cerr := b.dm.CloseAll(); cerr != nil && !errors.Is(cerr, inter.ErrDeviceNotFound) {
		b.log.WithError(cerr).Warn("释放会话失败")
	}
	return err
}

func (b *bridge) keepConnected(ctx context.Context, d config.DeviceConfig, t inter.Transport) error {
	log := b.log.WithFields(logrus.Fields{"address": d.Address, "family": d.Family, "name": d.Name})
	profile := b.profiles[d.Family]
	prefs := config.NewPrefs(d.Prefs)

	var sess *device_manager.Session
	for sess == nil {
		s, err := b.dm.Open(ctx, d.Family, d.Address, d.Name, t, prefs, &profile)
		if err != nil {
			log.WithError(err).Warn("连接失败，稍后重试")
			if !sleep(ctx, reconnectDelay) {
				return nil
			}
			continue
		}
		sess = s
	}

	ticker := time.NewTicker(reconnectDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if sess.State() != inter.StateDisconnected {
				continue
			}
			log.Info("尝试重新连接")
			if err := sess.Connect(ctx); err != nil {
				log.WithError(err).Warn("重新连接失败")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
