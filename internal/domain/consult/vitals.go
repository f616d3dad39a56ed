package consult

import (
	"math"
	"strconv"
	"strings"
)

const (
	metersPerInch = 0.0254
	kgPerPound    = 0.453592
)

// VitalField names an editable vitals input.
type VitalField string

const (
	VitalHeightFt      VitalField = "heightFt"
	VitalHeightIn      VitalField = "heightIn"
	VitalWeightLbs     VitalField = "weightLbs"
	VitalWaist         VitalField = "waist"
	VitalHip           VitalField = "hip"
	VitalBloodPressure VitalField = "bloodPressure"
	VitalHeartRate     VitalField = "heartRate"
	VitalTemperature   VitalField = "temperature"
)

// Valid reports whether f names an editable vitals field. BMI is derived
// and deliberately absent.
func (f VitalField) Valid() bool {
	switch f {
	case VitalHeightFt, VitalHeightIn, VitalWeightLbs, VitalWaist, VitalHip,
		VitalBloodPressure, VitalHeartRate, VitalTemperature:
		return true
	}
	return false
}

func (f VitalField) affectsBMI() bool {
	return f == VitalHeightFt || f == VitalHeightIn || f == VitalWeightLbs
}

// set assigns value to the named field and recomputes BMI when height or
// weight changed. It reports false for an unknown field.
func (v *Vitals) set(field VitalField, value string) bool {
	switch field {
	case VitalHeightFt:
		v.HeightFt = value
	case VitalHeightIn:
		v.HeightIn = value
	case VitalWeightLbs:
		v.WeightLbs = value
	case VitalWaist:
		v.Waist = value
	case VitalHip:
		v.Hip = value
	case VitalBloodPressure:
		v.BloodPressure = value
	case VitalHeartRate:
		v.HeartRate = value
	case VitalTemperature:
		v.Temperature = value
	default:
		return false
	}
	if field.affectsBMI() {
		v.BMI = CalculateBMI(v.HeightFt, v.HeightIn, v.WeightLbs)
	}
	return true
}

// CalculateBMI converts imperial inputs to kg/m² formatted to one decimal.
// Unparseable inputs count as zero; a zero height yields "".
func CalculateBMI(heightFt, heightIn, weightLbs string) string {
	inches := parseNumber(heightFt)*12 + parseNumber(heightIn)
	meters := inches * metersPerInch
	if meters == 0 {
		return ""
	}
	kg := parseNumber(weightLbs) * kgPerPound
	return strconv.FormatFloat(kg/(meters*meters), 'f', 1, 64)
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
