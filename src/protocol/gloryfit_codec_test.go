package protocol

import (
	"testing"

	"github.com/nhirsama/Goster-Bridge/src/inter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试：操作码加参数直接拼接
func TestGloryFitEncode(t *testing.T) {
	c := NewGloryFitCodec(nil)

	buf, err := c.Encode(GloryFitRegistry.MustGet(inter.OpcodeKey(GloryFitOpUnits)), []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa0, 0x01, 0x02}, buf)

	buf, err = c.Encode(GloryFitRegistry.MustGet(inter.OpcodeKey(GloryFitOpVersion)), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1}, buf)

	_, err = c.Encode(ShokzRegistry.MustGet(ShokzFirmwareGet), nil)
	assert.Error(t, err)
}

// 测试：每次通知就是一帧，负载不含操作码
func TestGloryFitFeed(t *testing.T) {
	c := NewGloryFitCodec(nil)

	frames := c.Feed(inter.ChannelCommand, []byte{0xa2, 0x55, 0x01})
	require.Len(t, frames, 1)
	assert.Equal(t, "BATTERY", frames[0].Command.Name)
	assert.Equal(t, []byte{0x55, 0x01}, frames[0].Payload)
	assert.Equal(t, inter.ChannelCommand, frames[0].Channel)

	frames = c.Feed(inter.ChannelData, []byte{0x32})
	require.Len(t, frames, 1)
	assert.Equal(t, "SLEEP_STAGES", frames[0].Command.Name)
	assert.Empty(t, frames[0].Payload)

	assert.Nil(t, c.Feed(inter.ChannelCommand, nil))

	frames = c.Feed(inter.ChannelCommand, []byte{0x01, 0x02})
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Command.Unrecognized)
}
