// internal/reading/flags.go
package reading

import "sort"

// Flag is one canonical warning, protection or fault condition. Family
// drivers translate their native bitsets into this vocabulary.
type Flag string

const (
	// Warnings: the BMS is still operating normally.
	WarnCellHigh             Flag = "warn_cell_voltage_high"
	WarnCellLow              Flag = "warn_cell_voltage_low"
	WarnPackHigh             Flag = "warn_pack_voltage_high"
	WarnPackLow              Flag = "warn_pack_voltage_low"
	WarnChargeCurrentHigh    Flag = "warn_charge_current_high"
	WarnDischargeCurrentHigh Flag = "warn_discharge_current_high"
	WarnChargeTempHigh       Flag = "warn_charge_temp_high"
	WarnChargeTempLow        Flag = "warn_charge_temp_low"
	WarnDischargeTempHigh    Flag = "warn_discharge_temp_high"
	WarnDischargeTempLow     Flag = "warn_discharge_temp_low"
	WarnEnvTempHigh          Flag = "warn_env_temp_high"
	WarnEnvTempLow           Flag = "warn_env_temp_low"
	WarnMosTempHigh          Flag = "warn_mos_temp_high"
	WarnTempHigh             Flag = "warn_temp_sensor_high"
	WarnTempLow              Flag = "warn_temp_sensor_low"
	WarnSOCLow               Flag = "warn_soc_low"

	// Protections: the BMS has cut or limited current.
	ProtectShortCircuit      Flag = "protect_short_circuit"
	ProtectChargeCurrent     Flag = "protect_charge_current"
	ProtectDischargeCurrent  Flag = "protect_discharge_current"
	ProtectPackHigh          Flag = "protect_pack_voltage_high"
	ProtectPackLow           Flag = "protect_pack_voltage_low"
	ProtectCellHigh          Flag = "protect_cell_voltage_high"
	ProtectCellLow           Flag = "protect_cell_voltage_low"
	ProtectChargeTempHigh    Flag = "protect_charge_temp_high"
	ProtectChargeTempLow     Flag = "protect_charge_temp_low"
	ProtectDischargeTempHigh Flag = "protect_discharge_temp_high"
	ProtectDischargeTempLow  Flag = "protect_discharge_temp_low"
	ProtectEnvTempHigh       Flag = "protect_env_temp_high"
	ProtectEnvTempLow        Flag = "protect_env_temp_low"
	ProtectMosTempHigh       Flag = "protect_mos_temp_high"

	// Faults: hardware is broken, not merely out of range.
	FaultSampling     Flag = "fault_sampling"
	FaultCell         Flag = "fault_cell"
	FaultNTC          Flag = "fault_ntc"
	FaultChargeMOS    Flag = "fault_charge_mos"
	FaultDischargeMOS Flag = "fault_discharge_mos"

	// Status.
	FullyCharged Flag = "fully_charged"
)

// FlagSet collects flags without duplicates.
type FlagSet map[Flag]struct{}

func NewFlagSet() FlagSet {
	return make(FlagSet)
}

func (s FlagSet) Add(f Flag) {
	s[f] = struct{}{}
}

// AddIf adds f when cond holds. It reads better than a wall of ifs in
// bitset translations.
func (s FlagSet) AddIf(cond bool, f Flag) {
	if cond {
		s.Add(f)
	}
}

// Slice returns the flags in stable sorted order.
func (s FlagSet) Slice() []Flag {
	if len(s) == 0 {
		return nil
	}
	out := make([]Flag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
