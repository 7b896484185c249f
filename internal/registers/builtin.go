package registers

import "fmt"

// Instrument kinds with a built-in catalog.
const (
	KindInverter = "inverter"
	KindMeter    = "meter"
)

// Inverter input registers (function code 4, start 0).
const (
	RegACInputVoltage         = 0
	RegInputFrequency         = 1
	RegOutputVoltage          = 2
	RegOutputFrequency        = 3
	RegOutputCurrent          = 4
	RegOutputLoadRate         = 6
	RegBatteryVoltage         = 7
	RegBatteryCapacityRate    = 9
	RegDCBusCurrent           = 12
	RegInternalTemperature    = 13
	RegAmbientTemperature     = 14
	RegPVInputVoltage         = 15
	RegControllerBattery      = 17
	RegControllerCharging     = 18
	RegControllerInternalTemp = 20
	RegControllerInternalAux  = 21
	RegControllerExternalTemp = 22
	RegDailyPowerLow          = 23
	RegDailyPowerHigh         = 24
	RegTotalPowerLow          = 25
	RegTotalPowerHigh         = 26
)

var inverterCatalog = mustCatalog(
	Descriptor{Index: RegACInputVoltage, Name: "AC input voltage", Unit: "V", Scale: ScaleTenth},
	Descriptor{Index: RegInputFrequency, Name: "Input frequency", Unit: "Hz", Scale: ScaleTenth},
	Descriptor{Index: RegOutputVoltage, Name: "Output voltage", Unit: "V", Scale: ScaleTenth},
	Descriptor{Index: RegOutputFrequency, Name: "Output frequency", Unit: "Hz", Scale: ScaleTenth},
	Descriptor{Index: RegOutputCurrent, Name: "Output current", Unit: "A", Scale: ScaleOne},
	Descriptor{Index: RegOutputLoadRate, Name: "Output load rate", Unit: "%", Scale: ScaleOne},
	Descriptor{Index: RegBatteryVoltage, Name: "Battery voltage", Unit: "V", Scale: ScaleTenth},
	Descriptor{Index: RegBatteryCapacityRate, Name: "Battery capacity rate", Unit: "%", Scale: ScaleOne},
	Descriptor{Index: RegDCBusCurrent, Name: "DC bus current", Unit: "A", Scale: ScaleOne},
	Descriptor{Index: RegInternalTemperature, Name: "Internal temperature", Unit: "°C", Scale: ScaleOne},
	Descriptor{Index: RegAmbientTemperature, Name: "Ambient temperature", Unit: "°C", Scale: ScaleOne},
	Descriptor{Index: RegPVInputVoltage, Name: "PV input voltage", Unit: "V", Scale: ScaleTenth},
	Descriptor{Index: RegControllerBattery, Name: "Controller battery", Unit: "V", Scale: ScaleTenth},
	Descriptor{Index: RegControllerCharging, Name: "Controller charging", Unit: "A", Scale: ScaleTenth},
	Descriptor{Index: RegControllerInternalTemp, Name: "Controller internal", Unit: "°C", Scale: ScaleOne},
	Descriptor{Index: RegControllerInternalAux, Name: "Controller internal (aux)", Unit: "°C", Scale: ScaleOne},
	Descriptor{Index: RegControllerExternalTemp, Name: "Controller external", Unit: "°C", Scale: ScaleOne},
	Descriptor{Index: RegDailyPowerLow, Name: "Low daily power", Unit: "Wh", Scale: ScaleOne},
	Descriptor{Index: RegDailyPowerHigh, Name: "High daily power", Unit: "Wh", Scale: ScaleOne},
	Descriptor{Index: RegTotalPowerLow, Name: "Low total power", Unit: "Wh", Scale: ScaleOne},
	Descriptor{Index: RegTotalPowerHigh, Name: "High total power", Unit: "Wh", Scale: ScaleOne},
)

var meterCatalog = mustCatalog()

// Inverter returns the built-in catalog for the solar inverter.
func Inverter() *Catalog {
	return inverterCatalog
}

// Meter returns the built-in catalog for the energy meter.
// It is empty: meter labels come from a catalog file.
func Meter() *Catalog {
	return meterCatalog
}

// ForKind returns the built-in catalog for an instrument kind.
func ForKind(kind string) (*Catalog, error) {
	switch kind {
	case KindInverter:
		return Inverter(), nil
	case KindMeter:
		return Meter(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
