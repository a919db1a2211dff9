package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Reading is one BESS telemetry record in the flat shape emitted by the
// stream endpoint. The nested shape returned by older batch endpoints is
// folded into the same fields on decode.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`

	BMSSOC       Number `json:"bms_soc,omitzero"`
	BMSSOH       Number `json:"bms_soh,omitzero"`
	BMSVoltage   Number `json:"bms_voltage,omitzero"`
	BMSCurrent   Number `json:"bms_current,omitzero"`
	BMSCellAveV  Number `json:"bms_cell_ave_v,omitzero"`
	BMSCellAveT  Number `json:"bms_cell_ave_t,omitzero"`
	BMSCellMaxV  Number `json:"bms_cell_max_v,omitzero"`
	BMSCellMinV  Number `json:"bms_cell_min_v,omitzero"`
	BMSCellVDiff Number `json:"bms_cell_v_diff,omitzero"`
	BMSCellTDiff Number `json:"bms_cell_t_diff,omitzero"`

	PCSApparentPower Number `json:"pcs_apparent_power,omitzero"`
	PCSDCVoltage     Number `json:"pcs_dc_voltage,omitzero"`
	PCSDCCurrent     Number `json:"pcs_dc_current,omitzero"`
	PCSACCurrentA    Number `json:"pcs_ac_current_a,omitzero"`
	PCSACCurrentB    Number `json:"pcs_ac_current_b,omitzero"`
	PCSACCurrentC    Number `json:"pcs_ac_current_c,omitzero"`
	PCSACVoltageAB   Number `json:"pcs_ac_voltage_ab,omitzero"`
	PCSACVoltageBC   Number `json:"pcs_ac_voltage_bc,omitzero"`
	PCSACVoltageCA   Number `json:"pcs_ac_voltage_ca,omitzero"`
	PCSTempIGBT      Number `json:"pcs_temp_igbt,omitzero"`
	PCSTempEnv       Number `json:"pcs_temp_environment,omitzero"`

	AuxOutsideTemp         Number `json:"aux_outside_temp,omitzero"`
	AuxOutwaterTemp        Number `json:"aux_outwater_temp,omitzero"`
	AuxReturnWaterPressure Number `json:"aux_return_water_pressure,omitzero"`
	AuxPowerApparent       Number `json:"aux_power_apparent,omitzero"`

	EnvHumidity    Number `json:"env_humidity,omitzero"`
	EnvTemperature Number `json:"env_temperature,omitzero"`

	SafetySmoke Flag     `json:"safety_smoke_flag,omitzero"`
	SafetyFire  Flag     `json:"safety_fire_flag,omitzero"`
	SafetyCO    Number   `json:"safety_co,omitzero"`
	SafetyVOC   Number   `json:"safety_voc,omitzero"`
	ErrorCodes  []string `json:"error_codes,omitempty"`
}

type nestedReading struct {
	BMS *struct {
		SOC     Number `json:"soc"`
		SOH     Number `json:"soh"`
		Voltage Number `json:"voltage"`
		Current Number `json:"current"`
	} `json:"bms"`
	PCS *struct {
		DCVoltage Number `json:"dc_voltage"`
		DCCurrent Number `json:"dc_current"`
		ACVoltage Number `json:"ac_voltage"`
		ACCurrent Number `json:"ac_current"`
		Power     Number `json:"power"`
		IGBTTemp  Number `json:"igbt_temp"`
	} `json:"pcs"`
	Aux *struct {
		WaterPressure  Number `json:"water_pressure"`
		AuxiliaryPower Number `json:"auxiliary_power"`
	} `json:"aux"`
	Env *struct {
		Humidity    Number `json:"humidity"`
		Temperature Number `json:"temperature"`
	} `json:"env"`
	Safety *struct {
		Smoke      Flag     `json:"smoke"`
		Fire       Flag     `json:"fire"`
		CO         Number   `json:"co"`
		VOC        Number   `json:"voc"`
		ErrorCodes []string `json:"error_codes"`
	} `json:"safety"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO and Python str() datetime forms seen in
// upstream payloads. Naive timestamps are read in time.Local.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	type flat Reading
	aux := struct {
		*flat
		Timestamp json.RawMessage `json:"timestamp"`
	}{flat: (*flat)(r)}
	*r = Reading{}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	var ts string
	if len(aux.Timestamp) > 0 && json.Unmarshal(aux.Timestamp, &ts) == nil {
		r.Timestamp, _ = ParseTimestamp(ts)
	}

	var n nestedReading
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	r.fold(n)
	return nil
}

func fill(dst *Number, src Number) {
	if !dst.Valid() && src.Valid() {
		*dst = src
	}
}

func fillFlag(dst *Flag, src Flag) {
	if dst.IsZero() && !src.IsZero() {
		*dst = src
	}
}

func (r *Reading) fold(n nestedReading) {
	if n.BMS != nil {
		fill(&r.BMSSOC, n.BMS.SOC)
		fill(&r.BMSSOH, n.BMS.SOH)
		fill(&r.BMSVoltage, n.BMS.Voltage)
		fill(&r.BMSCurrent, n.BMS.Current)
	}
	if n.PCS != nil {
		fill(&r.PCSDCVoltage, n.PCS.DCVoltage)
		fill(&r.PCSDCCurrent, n.PCS.DCCurrent)
		fill(&r.PCSACVoltageAB, n.PCS.ACVoltage)
		fill(&r.PCSACCurrentA, n.PCS.ACCurrent)
		fill(&r.PCSApparentPower, n.PCS.Power)
		fill(&r.PCSTempIGBT, n.PCS.IGBTTemp)
	}
	if n.Aux != nil {
		fill(&r.AuxReturnWaterPressure, n.Aux.WaterPressure)
		fill(&r.AuxPowerApparent, n.Aux.AuxiliaryPower)
	}
	if n.Env != nil {
		fill(&r.EnvHumidity, n.Env.Humidity)
		fill(&r.EnvTemperature, n.Env.Temperature)
	}
	if n.Safety != nil {
		fillFlag(&r.SafetySmoke, n.Safety.Smoke)
		fillFlag(&r.SafetyFire, n.Safety.Fire)
		fill(&r.SafetyCO, n.Safety.CO)
		fill(&r.SafetyVOC, n.Safety.VOC)
		if len(r.ErrorCodes) == 0 {
			r.ErrorCodes = n.Safety.ErrorCodes
		}
	}
}

type Device struct {
	DeviceID           string         `json:"device_id"`
	AvailableMetrics   []string       `json:"available_metrics"`
	TotalRowsPerMetric map[string]int `json:"total_rows_per_metric"`
}

type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// DeviceData is one batch of historical readings for a device.
type DeviceData struct {
	DeviceID     string    `json:"device_id"`
	TotalRecords int       `json:"total_records"`
	BatchSize    int       `json:"batch_size"`
	Data         []Reading `json:"data"`
}

// Tail returns a copy of d holding at most the last n readings, with the
// record counters rewritten to match.
func (d DeviceData) Tail(n int) DeviceData {
	rows := d.Data
	if n >= 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	out := d
	out.Data = append([]Reading(nil), rows...)
	out.TotalRecords = len(out.Data)
	out.BatchSize = len(out.Data)
	return out
}

// ChartPoint is a finalized aggregation bucket ready for display.
type ChartPoint struct {
	Time     string    `json:"time"`
	SOC      float64   `json:"soc"`
	FullTime time.Time `json:"full_time"`
}

type AlertLevel string

const (
	LevelNormal   AlertLevel = "normal"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

type Alert struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// StreamConfig is what a user asked for when starting a stream.
type StreamConfig struct {
	Interval  float64   `json:"interval"`
	Date      string    `json:"date,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Session is the persisted per-device dashboard state.
type Session struct {
	DeviceID  string        `json:"device_id" db:"device_id"`
	Online    bool          `json:"online" db:"online"`
	Streaming bool          `json:"streaming" db:"streaming"`
	Config    *StreamConfig `json:"config,omitempty" db:"-"`
}
