package device_manager

import (
	"errors"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/nhirsama/Goster-Bridge/src/protocol"
	"github.com/sirupsen/logrus"
)

// Handler 处理一条入站帧
// 返回包装了 inter.ErrMalformedPayload 的错误表示该帧被忽略
type Handler func(f inter.Frame) error

// Dispatcher 按命令键分发入站帧
type Dispatcher struct {
	reg      *protocol.Registry
	handlers map[inter.CommandKey]Handler
	log      *logrus.Entry
}

func NewDispatcher(reg *protocol.Registry, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		reg:      reg,
		handlers: make(map[inter.CommandKey]Handler),
		log:      log.WithField("component", "dispatch"),
	}
}

// Handle 注册处理器，同一个键重复注册时后者覆盖前者
func (d *Dispatcher) Handle(key inter.CommandKey, h Handler) {
	d.handlers[key] = h
}

// Dispatch 调用对应处理器
// advance 表示该帧是在途请求的响应且应当推进队列
func (d *Dispatcher) Dispatch(f inter.Frame, pending *PendingRequest) (advance bool, err error) {
	entry := d.log.WithFields(logrus.Fields{
		"command": f.Command.String(),
		"channel": f.Channel.String(),
	})

	if f.Command.Unrecognized {
		entry.WithField("len", len(f.Payload)).Warn("未知命令，忽略")
		return false, nil
	}

	correlated := pending != nil && d.reg.Correlates(pending.Message.Command, f.Command)

	h, ok := d.handlers[f.Command.Key]
	if !ok {
		entry.Warn("没有对应的处理器")
		return correlated, nil
	}

	if err = h(f); err != nil {
		if errors.Is(err, inter.ErrMalformedPayload) {
			entry.WithError(err).Warn("负载结构异常，丢弃")
			return false, err
		}
		entry.WithError(err).Error("处理入站帧失败")
	}
	return correlated, err
}
