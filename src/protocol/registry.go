package protocol

import (
	"fmt"
	"sort"

	"github.com/nhirsama/Goster-Bridge/src/inter"
)

// Correlator 由请求命令键推导响应命令键
type Correlator func(req inter.CommandKey) inter.CommandKey

// MaskResponse 响应码 = 请求码 | mask，分组不变
func MaskResponse(mask uint32) Correlator {
	return func(req inter.CommandKey) inter.CommandKey {
		return inter.CommandKey{Group: req.Group, Code: req.Code | mask}
	}
}

// SameKey 响应与请求使用同一个命令键 (单字节操作码协议的回包沿用请求操作码)
func SameKey(req inter.CommandKey) inter.CommandKey {
	return req
}

// Registry 某一设备族的静态命令表
// 支持按键查找、按名称查找以及请求到响应的关联
type Registry struct {
	family    string
	byKey     map[inter.CommandKey]inter.Command
	byName    map[string]inter.Command
	correlate Correlator
}

// NewRegistry 构建命令表。命令表是编译期常量，键或名称重复属于编程错误，直接 panic
func NewRegistry(family string, correlate Correlator, cmds ...inter.Command) *Registry {
	r := &Registry{
		family:    family,
		byKey:     make(map[inter.CommandKey]inter.Command, len(cmds)),
		byName:    make(map[string]inter.Command, len(cmds)),
		correlate: correlate,
	}
	for _, c := range cmds {
		if _, dup := r.byKey[c.Key]; dup {
			panic(fmt.Sprintf("%s: 命令键重复 %s", family, c.Key))
		}
		if _, dup := r.byName[c.Name]; dup {
			panic(fmt.Sprintf("%s: 命令名重复 %s", family, c.Name))
		}
		r.byKey[c.Key] = c
		r.byName[c.Name] = c
	}
	return r
}

// Family 设备族名称
func (r *Registry) Family() string { return r.family }

// Lookup 按键查找命令，未知键返回 Unrecognized 变体而不是错误
func (r *Registry) Lookup(key inter.CommandKey) inter.Command {
	if c, ok := r.byKey[key]; ok {
		return c
	}
	return inter.Command{Key: key, Unrecognized: true}
}

// ByName 按名称查找命令
func (r *Registry) ByName(name string) (inter.Command, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// MustGet 按键取出已登记的命令，供族内代码引用常量使用
func (r *Registry) MustGet(key inter.CommandKey) inter.Command {
	c, ok := r.byKey[key]
	if !ok {
		panic(fmt.Sprintf("%s: 未登记的命令 %s", r.family, key))
	}
	return c
}

// ResponseKey 请求对应的响应命令键
func (r *Registry) ResponseKey(req inter.Command) inter.CommandKey {
	if !req.Reply.IsZero() {
		return req.Reply
	}
	return r.correlate(req.Key)
}

// ResponseFor 请求对应的响应命令，响应未登记时 ok 为 false
func (r *Registry) ResponseFor(req inter.Command) (inter.Command, bool) {
	c, ok := r.byKey[r.ResponseKey(req)]
	return c, ok
}

// Correlates 判断 resp 是否是 req 的关联响应
func (r *Registry) Correlates(req, resp inter.Command) bool {
	if req.FireAndForget || resp.Unrecognized {
		return false
	}
	return r.ResponseKey(req) == resp.Key
}

// Commands 按键排序返回全部命令
func (r *Registry) Commands() []inter.Command {
	out := make([]inter.Command, 0, len(r.byKey))
	for _, c := range r.byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Group != out[j].Key.Group {
			return out[i].Key.Group < out[j].Key.Group
		}
		return out[i].Key.Code < out[j].Key.Code
	})
	return out
}
