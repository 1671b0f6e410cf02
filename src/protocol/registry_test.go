package protocol

import (
	"testing"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试：Shokz 的请求与响应按 0x8000 掩码关联
func TestRegistry_ShokzCorrelation(t *testing.T) {
	for _, c := range ShokzRegistry.Commands() {
		if c.Key.Code&ShokzResponseMask != 0 || c.FireAndForget {
			continue
		}
		resp, ok := ShokzRegistry.ResponseFor(c)
		if c.Key == ShokzMediaSourceNotify || c.Key == ShokzMultipointConnectionNotify {
			assert.False(t, ok, "%s is unsolicited and has no response", c.Name)
			continue
		}
		require.True(t, ok, "%s has no registered response", c.Name)
		assert.True(t, ShokzRegistry.Correlates(c, resp))
		assert.Equal(t, c.Key.Group, resp.Key.Group)
	}
}

// 测试：未知键返回 Unrecognized 变体，且不与任何请求关联
func TestRegistry_Unknown(t *testing.T) {
	unknown := ShokzRegistry.Lookup(inter.CommandKey{Group: 0x09, Code: 0x8001})
	assert.True(t, unknown.Unrecognized)
	assert.Contains(t, unknown.String(), "UNKNOWN")
	assert.False(t, ShokzRegistry.Correlates(ShokzRegistry.MustGet(ShokzFirmwareGet), unknown))

	_, ok := GloryFitRegistry.ByName("NOPE")
	assert.False(t, ok)
}

// 测试：不等待响应的命令永远不关联
func TestRegistry_FireAndForget(t *testing.T) {
	pair := ShokzRegistry.MustGet(ShokzMultipointStartPairReq)
	ack := ShokzRegistry.MustGet(ShokzMultipointStartPairAck)
	assert.False(t, ShokzRegistry.Correlates(pair, ack))

	steps := GloryFitRegistry.MustGet(inter.OpcodeKey(GloryFitOpSteps))
	assert.False(t, GloryFitRegistry.Correlates(steps, steps))
}

// 测试：GloryFit 版本与电量的回包沿用请求操作码
func TestRegistry_GloryFitSameKey(t *testing.T) {
	version, ok := GloryFitRegistry.ByName("VERSION")
	require.True(t, ok)
	assert.True(t, GloryFitRegistry.Correlates(version, version))

	battery := GloryFitRegistry.MustGet(inter.OpcodeKey(GloryFitOpBattery))
	assert.False(t, GloryFitRegistry.Correlates(version, battery))
}

// 测试：显式 Reply 优先于关联规则
func TestRegistry_ExplicitReply(t *testing.T) {
	req := inter.Command{Key: inter.OpcodeKey(0x10), Name: "REQ", Reply: inter.OpcodeKey(0x90)}
	resp := inter.Command{Key: inter.OpcodeKey(0x90), Name: "RESP"}
	r := NewRegistry("test", SameKey, req, resp)

	got, ok := r.ResponseFor(req)
	require.True(t, ok)
	assert.Equal(t, "RESP", got.Name)
	assert.True(t, r.Correlates(req, resp))
	assert.False(t, r.Correlates(req, req))
}

// 测试：重复登记直接 panic
func TestRegistry_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry("dup", SameKey,
			inter.Command{Key: inter.OpcodeKey(1), Name: "A"},
			inter.Command{Key: inter.OpcodeKey(1), Name: "B"},
		)
	})
	assert.Panics(t, func() { ShokzRegistry.MustGet(inter.CommandKey{Group: 0x55}) })
}
