package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// rfcommReadTimeout 读超时，用于让读循环及时发现 Close
const rfcommReadTimeout = 200 * time.Millisecond

// openSerial 测试中替换为内存串口
var openSerial = serial.Open

// RFCOMM 通过 `rfcomm bind` 得到的 /dev/rfcommN 与设备通信
// 串口只有一个逻辑通道，全部数据走 ChannelCommand
type RFCOMM struct {
	path string
	log  *logrus.Entry

	mu      sync.Mutex
	port    serial.Port
	closing bool
	done    chan struct{}
}

func NewRFCOMM(path string, log *logrus.Entry) *RFCOMM {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RFCOMM{
		path: path,
		log:  log.WithFields(logrus.Fields{"component": "transport", "port": path}),
	}
}

// Connect 打开串口并启动读循环
// 回调在读循环所在的 goroutine 中串行投递
func (t *RFCOMM) Connect(ctx context.Context, h inter.TransportHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.port != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: %s 已连接", t.path)
	}
	// RFCOMM 忽略波特率，这里只是满足 tty 的参数要求
	port, err := openSerial(t.path, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: 打开 %s 失败: %w", t.path, err)
	}
	if err := port.SetReadTimeout(rfcommReadTimeout); err != nil {
		port.Close()
		t.mu.Unlock()
		return fmt.Errorf("transport: 设置读超时失败: %w", err)
	}
	t.port = port
	t.closing = false
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.log.Info("串口已打开")
	h.OnConnected(protocol.ShokzMaxFrameSize)
	go t.readLoop(port, h, done)
	return nil
}

func (t *RFCOMM) readLoop(port serial.Port, h inter.TransportHandler, done chan struct{}) {
	defer close(done)
	buf := make([]byte, protocol.ShokzMaxFrameSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			h.OnReceive(inter.ChannelCommand, data)
		}
		if err != nil {
			t.mu.Lock()
			clean := t.closing
			t.port = nil
			t.mu.Unlock()
			if clean {
				h.OnDisconnected(nil)
				return
			}
			port.Close()
			t.log.WithError(err).Warn("串口读取失败")
			h.OnDisconnected(err)
			return
		}
		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()
		if closing {
			// 超时返回后发现已关闭
			h.OnDisconnected(nil)
			return
		}
	}
}

func (t *RFCOMM) Send(ch inter.Channel, data []byte) error {
	if ch != inter.ChannelCommand {
		return fmt.Errorf("transport: RFCOMM 不支持通道 %s", ch)
	}
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return inter.ErrNotConnected
	}
	for len(data) > 0 {
		n, err := port.Write(data)
		if err != nil {
			return fmt.Errorf("transport: 写入失败: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Close 关闭串口并等待读循环退出
func (t *RFCOMM) Close() error {
	t.mu.Lock()
	port, done := t.port, t.done
	if port == nil || t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.mu.Unlock()

	err := port.Close()
	<-done
	t.log.Info("串口已关闭")
	return err
}
