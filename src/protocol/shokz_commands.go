package protocol

import "github.com/nhirsama/Goster-Bridge/src/inter"

// ShokzFamily Shokz 骨传导耳机设备族名称
const ShokzFamily = "shokz"

// ShokzResponseMask 响应码 = 请求码 | 0x8000
const ShokzResponseMask uint32 = 0x8000

// Shokz 命令分组
const (
	ShokzGroupDevice     uint32 = 0x01
	ShokzGroupAudio      uint32 = 0x02
	ShokzGroupMultipoint uint32 = 0x03
)

func shokzKey(group, code uint32) inter.CommandKey {
	return inter.CommandKey{Group: group, Code: code}
}

func shokzRet(req inter.CommandKey) inter.CommandKey {
	return inter.CommandKey{Group: req.Group, Code: req.Code | ShokzResponseMask}
}

// 设备信息与按键设置
var (
	ShokzFirmwareGet = shokzKey(ShokzGroupDevice, 0x07de)
	ShokzFirmwareRet = shokzRet(ShokzFirmwareGet)
	ShokzBatteryGet  = shokzKey(ShokzGroupDevice, 0x07e2)
	ShokzBatteryRet  = shokzRet(ShokzBatteryGet)
	ShokzLanguageGet = shokzKey(ShokzGroupDevice, 0x07e4)
	ShokzLanguageRet = shokzRet(ShokzLanguageGet)
	ShokzLanguageSet = shokzKey(ShokzGroupDevice, 0x07e5)
	ShokzLanguageAck = shokzRet(ShokzLanguageSet)
	ShokzControlsGet = shokzKey(ShokzGroupDevice, 0x07e6)
	ShokzControlsRet = shokzRet(ShokzControlsGet)
	ShokzControlsSet = shokzKey(ShokzGroupDevice, 0x07e7)
	ShokzControlsAck = shokzRet(ShokzControlsSet)
)

// 音频与播放
var (
	ShokzMediaSourceGet     = shokzKey(ShokzGroupAudio, 0x0801)
	ShokzMediaSourceRet     = shokzRet(ShokzMediaSourceGet)
	ShokzMediaSourceSet     = shokzKey(ShokzGroupAudio, 0x0802)
	ShokzMediaSourceAck     = shokzRet(ShokzMediaSourceSet)
	ShokzMediaSourceNotify  = shokzKey(ShokzGroupAudio, 0x0803)
	ShokzEqualizerGet       = shokzKey(ShokzGroupAudio, 0x0804)
	ShokzEqualizerRet       = shokzRet(ShokzEqualizerGet)
	ShokzEqualizerSet       = shokzKey(ShokzGroupAudio, 0x0805)
	ShokzEqualizerAck       = shokzRet(ShokzEqualizerSet)
	ShokzPlaybackStatusGet  = shokzKey(ShokzGroupAudio, 0x0806)
	ShokzPlaybackStatusRet  = shokzRet(ShokzPlaybackStatusGet)
	ShokzVolumeGet          = shokzKey(ShokzGroupAudio, 0x0807)
	ShokzVolumeRet          = shokzRet(ShokzVolumeGet)
	ShokzMp3PlaybackModeGet = shokzKey(ShokzGroupAudio, 0x0808)
	ShokzMp3PlaybackModeRet = shokzRet(ShokzMp3PlaybackModeGet)
	ShokzMp3PlaybackModeSet = shokzKey(ShokzGroupAudio, 0x0809)
	ShokzMp3PlaybackModeAck = shokzRet(ShokzMp3PlaybackModeSet)
)

// 多点连接
var (
	ShokzMultipointGet              = shokzKey(ShokzGroupMultipoint, 0x0a01)
	ShokzMultipointRet              = shokzRet(ShokzMultipointGet)
	ShokzMultipointOn               = shokzKey(ShokzGroupMultipoint, 0x0a02)
	ShokzMultipointOnAck            = shokzRet(ShokzMultipointOn)
	ShokzMultipointOff              = shokzKey(ShokzGroupMultipoint, 0x0a03)
	ShokzMultipointOffAck           = shokzRet(ShokzMultipointOff)
	ShokzMultipointDevicesGet       = shokzKey(ShokzGroupMultipoint, 0x0a04)
	ShokzMultipointDevicesRet       = shokzRet(ShokzMultipointDevicesGet)
	ShokzMultipointConnectReq       = shokzKey(ShokzGroupMultipoint, 0x0a05)
	ShokzMultipointConnectAck       = shokzRet(ShokzMultipointConnectReq)
	ShokzMultipointDisconnectReq    = shokzKey(ShokzGroupMultipoint, 0x0a06)
	ShokzMultipointDisconnectAck    = shokzRet(ShokzMultipointDisconnectReq)
	ShokzMultipointStartPairReq     = shokzKey(ShokzGroupMultipoint, 0x0a07)
	ShokzMultipointStartPairAck     = shokzRet(ShokzMultipointStartPairReq)
	ShokzMultipointPairSecondFinish = shokzKey(ShokzGroupMultipoint, 0x0a08)
	ShokzMultipointConnectionNotify = shokzKey(ShokzGroupMultipoint, 0x0a09)
)

// ShokzRegistry Shokz 命令表
var ShokzRegistry = NewRegistry(ShokzFamily, MaskResponse(ShokzResponseMask),
	inter.Command{Key: ShokzFirmwareGet, Name: "FIRMWARE_GET"},
	inter.Command{Key: ShokzFirmwareRet, Name: "FIRMWARE_RET"},
	inter.Command{Key: ShokzBatteryGet, Name: "BATTERY_GET"},
	inter.Command{Key: ShokzBatteryRet, Name: "BATTERY_RET"},
	inter.Command{Key: ShokzLanguageGet, Name: "LANGUAGE_GET"},
	inter.Command{Key: ShokzLanguageRet, Name: "LANGUAGE_RET"},
	inter.Command{Key: ShokzLanguageSet, Name: "LANGUAGE_SET"},
	inter.Command{Key: ShokzLanguageAck, Name: "LANGUAGE_ACK"},
	inter.Command{Key: ShokzControlsGet, Name: "CONTROLS_GET"},
	inter.Command{Key: ShokzControlsRet, Name: "CONTROLS_RET"},
	inter.Command{Key: ShokzControlsSet, Name: "CONTROLS_SET"},
	inter.Command{Key: ShokzControlsAck, Name: "CONTROLS_ACK"},

	inter.Command{Key: ShokzMediaSourceGet, Name: "MEDIA_SOURCE_GET"},
	inter.Command{Key: ShokzMediaSourceRet, Name: "MEDIA_SOURCE_RET"},
	inter.Command{Key: ShokzMediaSourceSet, Name: "MEDIA_SOURCE_SET"},
	inter.Command{Key: ShokzMediaSourceAck, Name: "MEDIA_SOURCE_ACK"},
	inter.Command{Key: ShokzMediaSourceNotify, Name: "MEDIA_SOURCE_NOTIFY"},
	inter.Command{Key: ShokzEqualizerGet, Name: "EQUALIZER_GET"},
	inter.Command{Key: ShokzEqualizerRet, Name: "EQUALIZER_RET"},
	inter.Command{Key: ShokzEqualizerSet, Name: "EQUALIZER_SET"},
	inter.Command{Key: ShokzEqualizerAck, Name: "EQUALIZER_ACK"},
	inter.Command{Key: ShokzPlaybackStatusGet, Name: "PLAYBACK_STATUS_GET"},
	inter.Command{Key: ShokzPlaybackStatusRet, Name: "PLAYBACK_STATUS_RET"},
	inter.Command{Key: ShokzVolumeGet, Name: "VOLUME_GET"},
	inter.Command{Key: ShokzVolumeRet, Name: "VOLUME_RET"},
	inter.Command{Key: ShokzMp3PlaybackModeGet, Name: "MP3_PLAYBACK_MODE_GET"},
	inter.Command{Key: ShokzMp3PlaybackModeRet, Name: "MP3_PLAYBACK_MODE_RET"},
	inter.Command{Key: ShokzMp3PlaybackModeSet, Name: "MP3_PLAYBACK_MODE_SET"},
	inter.Command{Key: ShokzMp3PlaybackModeAck, Name: "MP3_PLAYBACK_MODE_ACK"},

	inter.Command{Key: ShokzMultipointGet, Name: "MULTIPOINT_GET"},
	inter.Command{Key: ShokzMultipointRet, Name: "MULTIPOINT_RET"},
	inter.Command{Key: ShokzMultipointOn, Name: "MULTIPOINT_ON"},
	inter.Command{Key: ShokzMultipointOnAck, Name: "MULTIPOINT_ON_ACK"},
	inter.Command{Key: ShokzMultipointOff, Name: "MULTIPOINT_OFF"},
	inter.Command{Key: ShokzMultipointOffAck, Name: "MULTIPOINT_OFF_ACK"},
	inter.Command{Key: ShokzMultipointDevicesGet, Name: "MULTIPOINT_DEVICES_GET"},
	inter.Command{Key: ShokzMultipointDevicesRet, Name: "MULTIPOINT_DEVICES_RET"},
	inter.Command{Key: ShokzMultipointConnectReq, Name: "MULTIPOINT_CONNECT_REQ"},
	inter.Command{Key: ShokzMultipointConnectAck, Name: "MULTIPOINT_CONNECT_ACK"},
	inter.Command{Key: ShokzMultipointDisconnectReq, Name: "MULTIPOINT_DISCONNECT_REQ"},
	inter.Command{Key: ShokzMultipointDisconnectAck, Name: "MULTIPOINT_DISCONNECT_ACK"},
	inter.Command{Key: ShokzMultipointStartPairReq, Name: "MULTIPOINT_START_PAIR_REQ", FireAndForget: true},
	inter.Command{Key: ShokzMultipointStartPairAck, Name: "MULTIPOINT_START_PAIR_ACK"},
	inter.Command{Key: ShokzMultipointPairSecondFinish, Name: "MULTIPOINT_PAIR_SECOND_FINISH", FireAndForget: true},
	inter.Command{Key: ShokzMultipointConnectionNotify, Name: "MULTIPOINT_DEVICE_CONNECTION_NOTIFY"},
)
