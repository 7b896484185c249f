package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every solarlog topic.
const TopicPrefix = "solarlog"

// Topics builds solarlog MQTT topic names.
//
//	topics := mqtt.Topics{}
//	topics.Reading("inverter") // "solarlog/inverter/reading"
type Topics struct{}

// Reading returns the retained topic carrying an instrument's latest record.
//
// Example: solarlog/inverter/reading
func (Topics) Reading(instrument string) string {
	return fmt.Sprintf("%s/%s/reading", TopicPrefix, instrument)
}

// Status returns the retained availability topic of an instrument.
//
// Example: solarlog/meter/status
func (Topics) Status(instrument string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, instrument)
}

// SystemStatus returns the process status topic used for the Last Will.
//
// Example: solarlog/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// AllReadings matches the reading topic of every instrument.
//
// Pattern: solarlog/+/reading
func (Topics) AllReadings() string {
	return fmt.Sprintf("%s/+/reading", TopicPrefix)
}

// AllStatuses matches every instrument status topic (and the system one).
//
// Pattern: solarlog/+/status
func (Topics) AllStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefix)
}

// InstrumentFromTopic extracts the instrument name from a reading or status
// topic. It returns "" for topics outside the solarlog tree.
func InstrumentFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/")
	if !ok {
		return ""
	}
	instrument, leaf, ok := strings.Cut(rest, "/")
	if !ok || instrument == "" || (leaf != "reading" && leaf != "status") {
		return ""
	}
	return instrument
}
