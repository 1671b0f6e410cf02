package protocol

import "github.com/nhirsama/Goster-Bridge/src/inter"

// GloryFitFamily GloryFit 手表设备族名称
const GloryFitFamily = "gloryfit"

// GloryFit 操作码 (每个写入或通知的第一个字节)
const (
	GloryFitOpUnits          byte = 0xa0
	GloryFitOpVersion        byte = 0xa1
	GloryFitOpBattery        byte = 0xa2
	GloryFitOpDateTime       byte = 0xa3
	GloryFitOpUserInfo       byte = 0xa9
	GloryFitOpVibrate        byte = 0xab
	GloryFitOpFactoryReset   byte = 0xad
	GloryFitOpLanguage       byte = 0xaf
	GloryFitOpSteps          byte = 0xb2
	GloryFitOpCallStatus     byte = 0xc1
	GloryFitOpCamera         byte = 0xc4
	GloryFitOpNotification   byte = 0xc5
	GloryFitOpAction         byte = 0xd1
	GloryFitOpSedentary      byte = 0xd3
	GloryFitOpCallReject     byte = 0xd7
	GloryFitOpHeartRate      byte = 0xf7
	GloryFitOpSleepInfo      byte = 0x31
	GloryFitOpSleepStages    byte = 0x32
	GloryFitOpSpO2           byte = 0x34
	GloryFitOpContacts       byte = 0x37
	GloryFitOpMusic          byte = 0x3a
	GloryFitOpGoals          byte = 0x3f
	GloryFitOpQuickReplyTo   byte = 0x45
	GloryFitOpCannedMessages byte = 0x46
	GloryFitOpSmsQuickReply  byte = 0x52
)

// 批量拉取的子码
const (
	GloryFitFetchStart byte = 0xfa
	GloryFitFetchData  byte = 0x07
	GloryFitFetchEnd   byte = 0xfd
)

// GloryFitRegistry GloryFit 命令表
// 版本与电量是请求/响应式，手表用同一操作码回包；其余写入均不等待响应
var GloryFitRegistry = NewRegistry(GloryFitFamily, SameKey,
	inter.Command{Key: inter.OpcodeKey(GloryFitOpVersion), Name: "VERSION"},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpBattery), Name: "BATTERY"},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpUnits), Name: "UNITS", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpDateTime), Name: "DATE_TIME", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpUserInfo), Name: "USER_INFO", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpVibrate), Name: "VIBRATE", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpFactoryReset), Name: "FACTORY_RESET", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpLanguage), Name: "LANGUAGE", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSteps), Name: "STEPS", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpCallStatus), Name: "CALL_STATUS", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpCamera), Name: "CAMERA", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpNotification), Name: "NOTIFICATION", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpAction), Name: "ACTION", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSedentary), Name: "SEDENTARY_REMINDER", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpCallReject), Name: "CALL_REJECT_WITH_BUTTON", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpHeartRate), Name: "HEART_RATE", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSleepInfo), Name: "SLEEP_INFO", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSleepStages), Name: "SLEEP_STAGES", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSpO2), Name: "SPO2", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpContacts), Name: "CONTACTS", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpMusic), Name: "MUSIC", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpGoals), Name: "GOALS", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpQuickReplyTo), Name: "QUICK_REPLY_TARGET", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpCannedMessages), Name: "CANNED_MESSAGES", FireAndForget: true},
	inter.Command{Key: inter.OpcodeKey(GloryFitOpSmsQuickReply), Name: "SMS_QUICK_REPLY", FireAndForget: true},
)
