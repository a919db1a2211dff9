// Package alert derives dashboard alerts and card statuses from a reading.
package alert

import (
	"fmt"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

const (
	IDSocLow   = "soc-low"
	IDIGBTTemp = "igbt-temp"
	IDSmoke    = "smoke"
	IDFire     = "fire"

	socLowThreshold  = 20.0
	igbtHotThreshold = 80.0
)

// Derive returns the alerts raised by r in fixed order: low SOC, IGBT
// temperature, smoke, fire. A missing value never raises an alert; a SOC of
// exactly 0 does.
func Derive(r domain.Reading) []domain.Alert {
	out := []domain.Alert{}
	if soc, ok := r.BMSSOC.Float64(); ok && soc < socLowThreshold {
		out = append(out, domain.Alert{
			ID:        IDSocLow,
			Level:     domain.LevelCritical,
			Message:   fmt.Sprintf("Low SOC: %.1f%%", soc),
			Timestamp: r.Timestamp,
		})
	}
	if temp, ok := r.PCSTempIGBT.Float64(); ok && temp > igbtHotThreshold {
		out = append(out, domain.Alert{
			ID:        IDIGBTTemp,
			Level:     domain.LevelWarning,
			Message:   fmt.Sprintf("High IGBT Temperature: %.1f°C", temp),
			Timestamp: r.Timestamp,
		})
	}
	if r.SafetySmoke.True() {
		out = append(out, domain.Alert{ID: IDSmoke, Level: domain.LevelCritical, Message: "Smoke detected!", Timestamp: r.Timestamp})
	}
	if r.SafetyFire.True() {
		out = append(out, domain.Alert{ID: IDFire, Level: domain.LevelCritical, Message: "Fire detected!", Timestamp: r.Timestamp})
	}
	return out
}

// Level is the status colour of a metric card.
func Level(metric string, value float64) domain.AlertLevel {
	switch metric {
	case "soc":
		if value < 20 {
			return domain.LevelCritical
		}
		if value < 40 {
			return domain.LevelWarning
		}
	case "igbt_temp":
		if value > 80 {
			return domain.LevelCritical
		}
		if value > 70 {
			return domain.LevelWarning
		}
	case "voltage":
		if value < 700 || value > 1200 {
			return domain.LevelCritical
		}
	}
	return domain.LevelNormal
}

// Levels evaluates every card metric present in r.
func Levels(r domain.Reading) map[string]domain.AlertLevel {
	out := map[string]domain.AlertLevel{}
	if v, ok := r.BMSSOC.Float64(); ok {
		out["soc"] = Level("soc", v)
	}
	if v, ok := r.PCSTempIGBT.Float64(); ok {
		out["igbt_temp"] = Level("igbt_temp", v)
	}
	if v, ok := r.BMSVoltage.Float64(); ok {
		out["voltage"] = Level("voltage", v)
	}
	return out
}
