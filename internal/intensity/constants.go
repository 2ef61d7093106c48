package intensity

import "github.com/GriffinCanCode/olfactory-vision/internal/model"

// Default label thresholds.
const (
	DefaultHighThreshold   = 0.7
	DefaultMediumThreshold = 0.35
)

var activityMultiplier = map[model.ActivityLevel]float64{
	model.ActivityLow:    1.0,
	model.ActivityMedium: 1.6,
	model.ActivityHigh:   2.5,
}

var proximityFactor = map[model.Proximity]float64{
	model.ProximityNear: 1.0,
	model.ProximityMid:  0.5,
	model.ProximityFar:  0.2,
}

// Thermodynamic modifier, applied to base volatility.
var temperatureFactor = map[model.Temperature]float64{
	model.TemperatureCold:    0.6,
	model.TemperatureAmbient: 1.0,
	model.TemperatureWarm:    1.3,
	model.TemperatureHot:     1.6,
}

// Hygrometric modifier, applied to base volatility.
var humidityFactor = map[model.Humidity]float64{
	model.HumidityDry:    0.9,
	model.HumidityNormal: 1.0,
	model.HumidityHumid:  1.2,
}

// Aerodynamic modifiers, applied to the proximity factor.
var (
	airflowFactor = map[model.Airflow]float64{
		model.AirflowStill:  1.0,
		model.AirflowLight:  1.15,
		model.AirflowStrong: 0.7,
	}
	confinementFactor = map[model.Confinement]float64{
		model.ConfinementEnclosed: 1.25,
		model.ConfinementSemi:     1.0,
		model.ConfinementOpen:     0.85,
	}
)
