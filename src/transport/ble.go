package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"tinygo.org/x/bluetooth"
)

// GATTLayout 一台 BLE 设备的服务与特征
// 命令与数据各占一对写入/通知特征，对应 ChannelCommand 与 ChannelData
type GATTLayout struct {
	CommandService string
	CommandWrite   string
	CommandNotify  string
	DataService    string
	DataWrite      string
	DataNotify     string
	MTU            int
}

// GloryFitLayout GloryFit 手表的 GATT 布局
func GloryFitLayout() GATTLayout {
	return GATTLayout{
		CommandService: protocol.GloryFitServiceCmd,
		CommandWrite:   protocol.GloryFitCharCmdWrite,
		CommandNotify:  protocol.GloryFitCharCmdRead,
		DataService:    protocol.GloryFitServiceData,
		DataWrite:      protocol.GloryFitCharDataWrite,
		DataNotify:     protocol.GloryFitCharDataRead,
		MTU:            protocol.GloryFitMTU,
	}
}

// gattLink 已建立的 GATT 连接
type gattLink interface {
	write(ch inter.Channel, data []byte) error
	mtu() int
	disconnect() error
}

// dialFunc 建立连接并订阅两个通知特征
type dialFunc func(ctx context.Context, address string, layout GATTLayout, notify func(ch inter.Channel, data []byte)) (gattLink, error)

// delivery 投递给会话的一次回调
type delivery struct {
	ch   inter.Channel
	data []byte
	down bool
	err  error
}

// BLE 基于 tinygo bluetooth 的 GATT 传输
// 两个特征的通知来自不同的 goroutine，统一经过 events 串行投递
type BLE struct {
	address string
	layout  GATTLayout
	adapter *Adapter
	dial    dialFunc
	log     *logrus.Entry

	mu     sync.Mutex
	link   gattLink
	events chan delivery
	done   chan struct{}

	connected *atomic.Bool
}

func NewBLE(adapter *Adapter, address string, layout GATTLayout, log *logrus.Entry) *BLE {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &BLE{
		address:   strings.ToUpper(address),
		layout:    layout,
		adapter:   adapter,
		log:       log.WithFields(logrus.Fields{"component": "transport", "address": address}),
		connected: atomic.NewBool(false),
	}
	if adapter != nil {
		t.dial = adapter.dial
	}
	return t
}

func (t *BLE) Connect(ctx context.Context, h inter.TransportHandler) error {
	t.mu.Lock()
	if t.link != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: %s 已连接", t.address)
	}
	events := make(chan delivery, 64)
	t.events = events
	t.mu.Unlock()

	link, err := t.dial(ctx, t.address, t.layout, func(ch inter.Channel, data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		t.post(delivery{ch: ch, data: buf})
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.link = link
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()
	t.connected.Store(true)
	if t.adapter != nil {
		t.adapter.track(t)
	}

	mtu := link.mtu()
	t.log.WithField("mtu", mtu).Info("GATT 已连接")
	h.OnConnected(mtu)
	go t.pump(h, events, done)
	return nil
}

func (t *BLE) post(d delivery) {
	t.mu.Lock()
	events := t.events
	t.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- d:
	default:
		t.log.WithField("channel", d.ch).Warn("通知积压，丢弃一条")
	}
}

func (t *BLE) pump(h inter.TransportHandler, events chan delivery, done chan struct{}) {
	defer close(done)
	for d := range events {
		if d.down {
			h.OnDisconnected(d.err)
			return
		}
		h.OnReceive(d.ch, d.data)
	}
}

// linkLost 适配器报告设备断开
func (t *BLE) linkLost() {
	if !t.connected.CompareAndSwap(true, false) {
		return
	}
	t.log.Warn("GATT 连接断开")
	t.mu.Lock()
	t.link = nil
	events := t.events
	t.events = nil
	t.mu.Unlock()
	if events != nil {
		events <- delivery{down: true, err: errors.New("transport: 设备断开连接")}
	}
}

func (t *BLE) Send(ch inter.Channel, data []byte) error {
	t.mu.Lock()
	link := t.link
	t.mu.Unlock()
	if link == nil {
		return inter.ErrNotConnected
	}
	return link.write(ch, data)
}

// Close 主动断开，等待投递 goroutine 退出
func (t *BLE) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	if t.adapter != nil {
		t.adapter.untrack(t)
	}
	t.mu.Lock()
	link, events, done := t.link, t.events, t.done
	t.link = nil
	t.events = nil
	t.mu.Unlock()

	err := link.disconnect()
	events <- delivery{down: true}
	<-done
	t.log.Info("GATT 已断开")
	return err
}

// =============================================================================
// tinygo 适配器
// =============================================================================

// Adapter 包装系统蓝牙适配器
// 适配器只有一个全局连接回调，这里按地址分发给各个 BLE 传输
type Adapter struct {
	adapter *bluetooth.Adapter
	log     *logrus.Entry

	mu    sync.Mutex
	links map[string]*BLE
}

// NewAdapter 启用适配器，adapter 为 nil 时使用 bluetooth.DefaultAdapter
func NewAdapter(adapter *bluetooth.Adapter, log *logrus.Entry) (*Adapter, error) {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	a := &Adapter{
		adapter: adapter,
		log:     log.WithField("component", "adapter"),
		links:   make(map[string]*BLE),
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("transport: 启用蓝牙适配器失败: %w", err)
	}
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := strings.ToUpper(device.Address.String())
		a.log.WithFields(logrus.Fields{"address": addr, "connected": connected}).Debug("连接状态变化")
		if connected {
			return
		}
		a.mu.Lock()
		t := a.links[addr]
		a.mu.Unlock()
		if t != nil {
			t.linkLost()
		}
	})
	return a, nil
}

func (a *Adapter) track(t *BLE) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.links[t.address] = t
}

func (a *Adapter) untrack(t *BLE) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.links[t.address] == t {
		delete(a.links, t.address)
	}
}

type tinygoLink struct {
	device  bluetooth.Device
	writers map[inter.Channel]*bluetooth.DeviceCharacteristic
	size    int
	bleMu   sync.Mutex
}

func (a *Adapter) dial(ctx context.Context, address string, layout GATTLayout, notify func(inter.Channel, []byte)) (gattLink, error) {
	if _, err := bluetooth.ParseMAC(address); err != nil {
		return nil, fmt.Errorf("transport: 地址无效 %q: %w", address, err)
	}
	var addr bluetooth.Address
	addr.Set(address)

	type result struct {
		device bluetooth.Device
		err    error
	}
	resc := make(chan result, 1)
	go func() {
		d, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		resc <- result{d, err}
	}()

	var device bluetooth.Device
	select {
	case <-ctx.Done():
		// 连接迟早返回，成功时立即断开
		go func() {
			if r := <-resc; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case r := <-resc:
		if r.err != nil {
			return nil, fmt.Errorf("transport: 连接 %s 失败: %w", address, r.err)
		}
		device = r.device
	}

	link, err := a.setup(device, layout, notify)
	if err != nil {
		device.Disconnect()
		return nil, err
	}
	return link, nil
}

// setup 发现服务与特征并订阅通知
func (a *Adapter) setup(device bluetooth.Device, layout GATTLayout, notify func(inter.Channel, []byte)) (*tinygoLink, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: 发现服务失败: %w", err)
	}

	chars := make(map[string]*bluetooth.DeviceCharacteristic)
	for i := range services {
		svc := services[i].UUID().String()
		if !strings.EqualFold(svc, layout.CommandService) && !strings.EqualFold(svc, layout.DataService) {
			continue
		}
		found, err := services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("transport: 发现特征失败 %s: %w", svc, err)
		}
		for j := range found {
			chars[strings.ToLower(found[j].UUID().String())] = &found[j]
		}
	}
	lookup := func(id string) (*bluetooth.DeviceCharacteristic, error) {
		c, ok := chars[strings.ToLower(id)]
		if !ok {
			return nil, fmt.Errorf("transport: 缺少特征 %s", id)
		}
		return c, nil
	}

	link := &tinygoLink{device: device, writers: make(map[inter.Channel]*bluetooth.DeviceCharacteristic), size: layout.MTU}
	subs := []struct {
		ch            inter.Channel
		write, notify string
	}{
		{inter.ChannelCommand, layout.CommandWrite, layout.CommandNotify},
		{inter.ChannelData, layout.DataWrite, layout.DataNotify},
	}
	for _, s := range subs {
		w, err := lookup(s.write)
		if err != nil {
			return nil, err
		}
		n, err := lookup(s.notify)
		if err != nil {
			return nil, err
		}
		ch := s.ch
		if err := n.EnableNotifications(func(buf []byte) { notify(ch, buf) }); err != nil {
			return nil, fmt.Errorf("transport: 订阅通知失败 %s: %w", s.notify, err)
		}
		link.writers[ch] = w
	}

	// 以协商结果为准，读不到时沿用布局里的 MTU
	if m, err := link.writers[inter.ChannelCommand].GetMTU(); err == nil && m > 0 {
		link.size = int(m)
	}
	return link, nil
}

func (l *tinygoLink) write(ch inter.Channel, data []byte) error {
	w, ok := l.writers[ch]
	if !ok {
		return fmt.Errorf("transport: 未知通道 %s", ch)
	}
	l.bleMu.Lock()
	defer l.bleMu.Unlock()
	if _, err := w.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("transport: 写入特征失败: %w", err)
	}
	return nil
}

func (l *tinygoLink) mtu() int { return l.size }

func (l *tinygoLink) disconnect() error { return l.device.Disconnect() }
