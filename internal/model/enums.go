// Package model defines the interval, assessment and frame types shared by both inference stages.
package model

import (
	"strings"
	"unicode"
)

// Proximity is the camera distance class of the primary interacting object(s).
type Proximity string

const (
	ProximityNear Proximity = "near"
	ProximityMid  Proximity = "mid"
	ProximityFar  Proximity = "far"
)

// Valid reports whether p is one of the defined proximity classes.
func (p Proximity) Valid() bool {
	switch p {
	case ProximityNear, ProximityMid, ProximityFar:
		return true
	}
	return false
}

// Trend is the direction of proximity change within an interval.
type Trend string

const (
	TrendApproaching Trend = "approaching"
	TrendReceding    Trend = "receding"
	TrendStable      Trend = "stable"
)

func (t Trend) Valid() bool {
	switch t {
	case TrendApproaching, TrendReceding, TrendStable:
		return true
	}
	return false
}

// ActivityLevel is the observed amount of motion or manipulation.
type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "low"
	ActivityMedium ActivityLevel = "medium"
	ActivityHigh   ActivityLevel = "high"
)

func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivityLow, ActivityMedium, ActivityHigh:
		return true
	}
	return false
}

// IntensityLabel is the discretized intensity category.
type IntensityLabel string

const (
	IntensityNone   IntensityLabel = "none"
	IntensityLow    IntensityLabel = "low"
	IntensityMedium IntensityLabel = "medium"
	IntensityHigh   IntensityLabel = "high"
)

func (l IntensityLabel) Valid() bool {
	switch l {
	case IntensityNone, IntensityLow, IntensityMedium, IntensityHigh:
		return true
	}
	return false
}

// Temperature is the normalized thermal condition of the scene or source.
type Temperature string

const (
	TemperatureUnknown Temperature = ""
	TemperatureCold    Temperature = "cold"
	TemperatureAmbient Temperature = "ambient"
	TemperatureWarm    Temperature = "warm"
	TemperatureHot     Temperature = "hot"
)

// Airflow is the normalized visible air movement.
type Airflow string

const (
	AirflowUnknown Airflow = ""
	AirflowStill   Airflow = "still"
	AirflowLight   Airflow = "light"
	AirflowStrong  Airflow = "strong"
)

// Humidity is the normalized moisture condition.
type Humidity string

const (
	HumidityUnknown Humidity = ""
	HumidityDry     Humidity = "dry"
	HumidityNormal  Humidity = "normal"
	HumidityHumid   Humidity = "humid"
)

// Confinement is the spatial enclosure of the scene.
type Confinement string

const (
	ConfinementUnknown  Confinement = ""
	ConfinementEnclosed Confinement = "enclosed"
	ConfinementSemi     Confinement = "semi"
	ConfinementOpen     Confinement = "open"
)

// Keyword lists for the free-text environment parsers. A trailing "*" matches any word with
// that prefix; a space separates the words of a phrase. Rules are tried in order.
type keywordRule[T any] struct {
	value T
	keys  []string
}

var temperatureRules = []keywordRule[Temperature]{
	{TemperatureHot, []string{"boil*", "hot", "hotter", "sizzl*", "steam*", "fire", "fires", "burn*", "grill*", "fry*", "fried"}},
	{TemperatureWarm, []string{"warm*", "heated", "toast*"}},
	{TemperatureAmbient, []string{"room temp*", "ambient"}},
	{TemperatureCold, []string{"cold*", "ice", "iced", "icy", "frozen", "freez*", "chill*", "cool*"}},
	{TemperatureAmbient, []string{"room", "neutral", "mild"}},
}

var airflowRules = []keywordRule[Airflow]{
	{AirflowStrong, []string{"strong*", "wind*", "gust*", "waving", "fan", "fans", "blow*"}},
	{AirflowStill, []string{"still", "none", "calm*", "vertical*"}},
	{AirflowLight, []string{"light", "breez*", "gentle", "drift*", "rising"}},
}

var humidityRules = []keywordRule[Humidity]{
	{HumidityDry, []string{"dry", "drier", "arid"}},
	{HumidityHumid, []string{"humid*", "steam*", "rain*", "wet", "moist*", "damp*", "fog*"}},
	{HumidityNormal, []string{"normal", "moderate"}},
}

var confinementRules = []keywordRule[Confinement]{
	{ConfinementSemi, []string{"semi*", "partial*", "porch", "tent", "tents"}},
	{ConfinementOpen, []string{"open", "outdoor*", "outside", "field*", "street*"}},
	{ConfinementEnclosed, []string{"closed", "enclosed", "indoor*", "room", "rooms", "kitchen*", "car", "cars", "box*"}},
}

// ParseTemperature maps free text ("Boiling hot", "Iced") onto a Temperature.
func ParseTemperature(s string) Temperature { return classify(s, temperatureRules) }

// ParseAirflow maps free text ("Trees waving", "Still air") onto an Airflow.
func ParseAirflow(s string) Airflow { return classify(s, airflowRules) }

// ParseHumidity maps free text ("Steamy", "Dry") onto a Humidity.
func ParseHumidity(s string) Humidity { return classify(s, humidityRules) }

// ParseConfinement maps free text ("Small closed room", "Open outdoors") onto a Confinement.
func ParseConfinement(s string) Confinement { return classify(s, confinementRules) }

// classify returns the value of the first rule with a matching keyword, or T's zero value
// (the Unknown constant) when none matches.
func classify[T any](s string, rules []keywordRule[T]) T {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, rule := range rules {
		for _, key := range rule.keys {
			if hasPhrase(words, strings.Fields(key)) {
				return rule.value
			}
		}
	}
	var zero T
	return zero
}

func hasPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		ok := true
		for j, k := range phrase {
			if !wordMatches(words[i+j], k) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func wordMatches(word, key string) bool {
	if prefix, ok := strings.CutSuffix(key, "*"); ok {
		return strings.HasPrefix(word, prefix)
	}
	return word == key
}
