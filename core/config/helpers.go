package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GetAllSettings returns the runtime knobs exposed on the monitoring API.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"whatsapp_max_instances":          Global.Whatsapp.MaxInstances,
		"whatsapp_qr_timeout":             Global.Whatsapp.QRTimeout.String(),
		"whatsapp_max_reconnect_attempts": Global.Whatsapp.MaxReconnectAttempts,
		"ai_provider":                     Global.AI.Provider,
		"ai_debounce":                     Global.AI.Debounce.String(),
		"ai_responder_timeout":            Global.AI.ResponderTimeout.String(),
		"ai_history_limit":                Global.AI.HistoryLimit,
		"monitor_interval":                Global.Monitor.Interval.String(),
		"monitor_memory_high_water_mb":    Global.Monitor.MemoryHighWaterMB,
		"monitor_error_ceiling":           Global.Monitor.ErrorCeiling,
		"app_debug":                       Global.App.Debug,
		"app_version":                     Global.App.Version,
	}
}

func getString(v *viper.Viper, key, fallback string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return fallback
}

// getDuration acepta "90s", "2m" o segundos enteros ("60").
func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if sec, err := strconv.Atoi(raw); err == nil && sec >= 0 {
		return time.Duration(sec) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
