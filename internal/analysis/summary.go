package analysis

import (
	"math"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/aggregator"
	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/converter"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

// maxGap bounds the interval integrated between two readings; longer gaps
// are treated as missing data.
const maxGap = 15 * time.Minute

// Summary is a deterministic digest of the analysed readings, shown next to
// the AI answer.
type Summary struct {
	Samples       int     `json:"samples"`
	AvgSOC        float64 `json:"avg_soc"`
	MinSOC        float64 `json:"min_soc"`
	MaxSOC        float64 `json:"max_soc"`
	AvgPowerKW    float64 `json:"avg_power_kw"`
	ChargedKWh    float64 `json:"charged_kwh"`
	DischargedKWh float64 `json:"discharged_kwh"`
	ThroughputMWh float64 `json:"throughput_mwh"`
	// RoundTripEfficiency is discharged over charged energy in percent; zero
	// when nothing was charged.
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	ChargeCost          float64 `json:"charge_cost"`
	DischargeValue      float64 `json:"discharge_value"`
}

// Summarize digests readings. Energy between two consecutive readings is
// counted as charged when SOC rose and discharged otherwise, using the
// absolute apparent power over the elapsed time. It returns nil when no
// reading carries a SOC.
func Summarize(readings []domain.Reading, rate float64) *Summary {
	var soc, power []aggregator.Point
	minSOC, maxSOC := math.Inf(1), math.Inf(-1)
	for _, r := range readings {
		if v, ok := r.BMSSOC.Float64(); ok {
			soc = append(soc, aggregator.Point{Value: v, Timestamp: r.Timestamp})
			minSOC = math.Min(minSOC, v)
			maxSOC = math.Max(maxSOC, v)
		}
		if v, ok := r.PCSApparentPower.Float64(); ok {
			power = append(power, aggregator.Point{Value: math.Abs(v), Timestamp: r.Timestamp})
		}
	}
	if len(soc) == 0 {
		return nil
	}

	s := &Summary{
		Samples: len(soc),
		AvgSOC:  round2(aggregator.Average(soc)),
		MinSOC:  minSOC,
		MaxSOC:  maxSOC,
	}
	if len(power) > 0 {
		s.AvgPowerKW = round2(aggregator.Average(power))
	}

	var charged, discharged []aggregator.Point
	for i := 1; i < len(readings); i++ {
		prev, cur := readings[i-1], readings[i]
		p, ok := cur.PCSApparentPower.Float64()
		if !ok {
			continue
		}
		dt := cur.Timestamp.Sub(prev.Timestamp)
		if dt <= 0 || dt > maxGap {
			continue
		}
		kwh := aggregator.Point{Value: math.Abs(p) * dt.Hours(), Timestamp: cur.Timestamp}
		prevSOC, ok1 := prev.BMSSOC.Float64()
		curSOC, ok2 := cur.BMSSOC.Float64()
		if !ok1 || !ok2 {
			continue
		}
		if curSOC > prevSOC {
			charged = append(charged, kwh)
		} else {
			discharged = append(discharged, kwh)
		}
	}

	conv := &converter.EnergyConverter{}
	s.ChargedKWh = round2(aggregator.Sum(charged))
	s.DischargedKWh = round2(aggregator.Sum(discharged))
	s.ThroughputMWh = round2(conv.KWhToMWh(s.ChargedKWh + s.DischargedKWh))
	if s.ChargedKWh > 0 {
		s.RoundTripEfficiency = round2(conv.CalculateEfficiency(s.ChargedKWh, s.DischargedKWh))
	}
	s.ChargeCost = round2(conv.CalculateCost(s.ChargedKWh, rate, "offpeak"))
	s.DischargeValue = round2(conv.CalculateCost(s.DischargedKWh, rate, "peak"))
	return s
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
