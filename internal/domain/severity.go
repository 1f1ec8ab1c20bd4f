package domain

import (
	"encoding/json"
	"strconv"
)

// ItemSeverity maps a normalized item's category and raw payload to a 0-100
// base severity score. Thresholds are operational heuristics per category:
// earthquake scales with magnitude above M3, weather alerts follow CAP
// severity labels, advisories follow their advice level, and so on. Unknown
// categories score a neutral 40.
func ItemSeverity(category string, raw json.RawMessage) int {
	fields := rawFieldsFromJSON(raw)

	switch category {
	case "earthquake":
		if mag, ok := fields.float("mag"); ok {
			return clampScore(int((mag - 3.0) * 20.0))
		}
		return 40
	case "weather_alert":
		switch fields.str("severity") {
		case "Extreme":
			return 95
		case "Severe":
			return 80
		case "Moderate":
			return 55
		case "Minor":
			return 35
		}
		return 50
	case "tropical_cyclone":
		return 75
	case "tsunami":
		return 90
	case "volcano":
		if lvl, ok := fields.float("severity_level_1_5"); ok {
			return clampScore(int(lvl) * 20)
		}
		return 70
	case "wildfire":
		// Fire radiative power, when the hotspot feed supplies it.
		if frp, ok := fields.float("frp"); ok {
			return clampScore(int(frp * 3.0))
		}
		return 55
	case "travel_advisory":
		switch fields.str("advice_level") {
		case "do_not_travel":
			return 85
		case "reconsider_your_need_to_travel":
			return 65
		}
		return 50
	case "aviation_disruption":
		switch fields.str("severity_kind") {
		case "closure":
			return 90
		case "ground_stop":
			return 80
		case "gdp":
			return 65
		}
		if avg, ok := fields.float("avg_delay_min"); ok {
			return clampBetween(int(avg), 40, 80)
		}
		return 50
	case "health_advisory":
		return 55
	case "cyber_kev":
		return 75
	case "cyber_cve":
		return 60
	case "disaster":
		return 60
	default:
		return 40
	}
}

// IncidentSeverity combines the best member base score with a corroboration
// bonus: independent sources count double what repeat items from one source
// do. Clamped to 0-100.
func IncidentSeverity(base, itemCount, sourceCount int) int {
	bonus := 0
	if sourceCount > 1 {
		bonus += min(10, 2*(sourceCount-1))
	}
	if itemCount > 1 {
		bonus += min(5, itemCount/5)
	}
	return clampScore(base + bonus)
}

func clampScore(v int) int { return clampBetween(v, 0, 100) }

func clampBetween(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rawFields is a forgiving view over the provenance payload: upstream feeds
// encode numbers inconsistently (JSON numbers, numeric strings), so lookups
// accept both.
type rawFields map[string]any

func (f rawFields) str(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

func (f rawFields) float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func rawFieldsFromJSON(raw json.RawMessage) rawFields {
	fields := rawFields{}
	if len(raw) == 0 {
		return fields
	}
	_ = json.Unmarshal(raw, (*map[string]any)(&fields))
	return fields
}
