package config

import (
	"sync"

	"github.com/spf13/viper"
)

// Prefs 单台设备的偏好设置，实现 inter.Preferences
// 键不区分大小写
type Prefs struct {
	mu sync.RWMutex
	v  *viper.Viper
}

func NewPrefs(values map[string]any) *Prefs {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return &Prefs{v: v}
}

func (p *Prefs) GetString(key string, def string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.v.IsSet(key) {
		return def
	}
	return p.v.GetString(key)
}

func (p *Prefs) GetInt(key string, def int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.v.IsSet(key) {
		return def
	}
	return p.v.GetInt(key)
}

func (p *Prefs) GetBool(key string, def bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.v.IsSet(key) {
		return def
	}
	return p.v.GetBool(key)
}

func (p *Prefs) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(key, value)
}

// Snapshot 当前全部设置的副本
func (p *Prefs) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.AllSettings()
}
