package clublogbridge

import (
	"strconv"

	"github.com/jpalmerr/clublogbridge/discovery"
)

const (
	// listAttributeLimit caps the rows carried in list attributes.
	listAttributeLimit = 20
	topWantedLimit     = 10
)

// SensorDescription declares one published entity and how its value is
// derived from [Data].
type SensorDescription struct {
	ID   string
	Name string
	Kind discovery.Kind

	// Source is the endpoint the value is derived from. Diagnostic sensors
	// summarise every endpoint and have no single source.
	Source     Endpoint
	Diagnostic bool

	Unit        string
	Icon        string
	StateClass  string
	DeviceClass string

	Value      func(Data) string
	Attributes func(Data) map[string]any
}

// Sensor renders the description against d.
func (s SensorDescription) Sensor(d Data) discovery.Sensor {
	out := discovery.Sensor{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        s.Kind,
		Unit:        s.Unit,
		Icon:        s.Icon,
		StateClass:  s.StateClass,
		DeviceClass: s.DeviceClass,
		State:       s.Value(d),
	}
	if s.Diagnostic {
		out.EntityCategory = "diagnostic"
	}
	if s.Attributes != nil {
		out.Attributes = s.Attributes(d)
	}
	return out
}

var sensorDescriptions = []SensorDescription{
	{
		ID:         "dxcc_worked_total",
		Name:       "DXCC Worked",
		Source:     EndpointMatrix,
		Unit:       "entities",
		Icon:       "mdi:earth",
		StateClass: "total",
		Value:      func(d Data) string { return strconv.Itoa(d.Stats.Worked) },
	},
	{
		ID:         "dxcc_confirmed_total",
		Name:       "DXCC Confirmed",
		Source:     EndpointMatrix,
		Unit:       "entities",
		Icon:       "mdi:earth-plus",
		StateClass: "total",
		Value:      func(d Data) string { return strconv.Itoa(d.Stats.Confirmed) },
	},
	{
		ID:         "dxcc_verified_total",
		Name:       "DXCC Verified",
		Source:     EndpointMatrix,
		Unit:       "entities",
		Icon:       "mdi:earth-arrow-right",
		StateClass: "total",
		Value:      func(d Data) string { return strconv.Itoa(d.Stats.Verified) },
	},
	{
		ID:         "watch_total_qsos",
		Name:       "Total QSOs",
		Source:     EndpointWatch,
		Unit:       "QSOs",
		Icon:       "mdi:radio-tower",
		StateClass: "total",
		Value: func(d Data) string {
			if d.Watch == nil {
				return "0"
			}
			return strconv.FormatInt(int64(d.Watch.Info.TotalQSOs), 10)
		},
	},
	{
		ID:     "watch_is_expedition",
		Name:   "Is Expedition",
		Source: EndpointWatch,
		Icon:   "mdi:airplane-takeoff",
		Value: func(d Data) string {
			return yesNo(d.Watch != nil && bool(d.Watch.IsExpedition))
		},
	},
	{
		ID:     "watch_has_oqrs",
		Name:   "Has OQRS",
		Source: EndpointWatch,
		Icon:   "mdi:email-check",
		Value: func(d Data) string {
			return yesNo(d.Watch != nil && bool(d.Watch.HasOQRS))
		},
	},
	{
		ID:     "watch_last_upload",
		Name:   "Last Upload",
		Source: EndpointWatch,
		Icon:   "mdi:cloud-upload",
		Value: func(d Data) string {
			if d.Watch == nil || d.Watch.Info.LastUploadTime() == "" {
				return "Unknown"
			}
			return d.Watch.Info.LastUploadTime()
		},
	},
	{
		ID:         "most_wanted_count",
		Name:       "Most Wanted Entities",
		Source:     EndpointMostWanted,
		Unit:       "entities",
		Icon:       "mdi:star",
		StateClass: "measurement",
		Value:      func(d Data) string { return strconv.Itoa(len(d.MostWanted)) },
		Attributes: func(d Data) map[string]any {
			top := make(map[string]string, min(len(d.MostWanted), topWantedLimit))
			for _, w := range d.MostWanted[:min(len(d.MostWanted), topWantedLimit)] {
				top[strconv.Itoa(w.Rank)] = w.DXCC
			}
			return map[string]any{"top_10": top}
		},
	},
	{
		ID:         "active_expeditions",
		Name:       "Active Expeditions",
		Source:     EndpointExpeditions,
		Unit:       "expeditions",
		Icon:       "mdi:airplane",
		StateClass: "measurement",
		Value:      func(d Data) string { return strconv.Itoa(len(d.Expeditions)) },
		Attributes: func(d Data) map[string]any {
			rows := make([]map[string]any, 0, min(len(d.Expeditions), listAttributeLimit))
			for _, e := range d.Expeditions[:min(len(d.Expeditions), listAttributeLimit)] {
				rows = append(rows, map[string]any{"call": e.Call, "date": e.Date, "qso_count": e.QSOCount})
			}
			return map[string]any{"expeditions": rows}
		},
	},
	{
		ID:         "active_livestreams",
		Name:       "Active Livestreams",
		Source:     EndpointLivestreams,
		Unit:       "streams",
		Icon:       "mdi:broadcast",
		StateClass: "measurement",
		Value:      func(d Data) string { return strconv.Itoa(len(d.Livestreams)) },
		Attributes: func(d Data) map[string]any {
			rows := make([]map[string]any, 0, min(len(d.Livestreams), listAttributeLimit))
			for _, l := range d.Livestreams[:min(len(d.Livestreams), listAttributeLimit)] {
				rows = append(rows, map[string]any{"call": l.Call, "dxcc": l.DXCC, "url": l.URL})
			}
			return map[string]any{"livestreams": rows}
		},
	},
	{
		ID:         "band_activity",
		Name:       "Band Activity",
		Source:     EndpointActivity,
		Unit:       "bands",
		Icon:       "mdi:sine-wave",
		StateClass: "measurement",
		Value:      func(d Data) string { return strconv.Itoa(len(d.Activity)) },
		Attributes: func(d Data) map[string]any {
			attrs := make(map[string]any, len(d.Activity))
			for _, band := range d.Activity.Bands() {
				attrs["band_"+band] = d.Activity[band].Total()
			}
			return attrs
		},
	},
	{
		ID:         "api_consecutive_errors",
		Name:       "API Errors",
		Diagnostic: true,
		Unit:       "errors",
		Icon:       "mdi:alert-circle",
		StateClass: "measurement",
		Value:      func(d Data) string { return strconv.Itoa(d.Health.TotalErrors) },
		Attributes: func(d Data) map[string]any { return d.Health.ErrorAttributes() },
	},
	{
		ID:          "api_status",
		Name:        "API Status",
		Kind:        discovery.KindBinarySensor,
		Diagnostic:  true,
		DeviceClass: "connectivity",
		Value:       func(d Data) string { return discovery.BinaryState(d.Health.Connected) },
		Attributes:  func(d Data) map[string]any { return d.Health.StatusAttributes() },
	},
}

// Sensors returns the description of every published entity.
// The returned slice is a copy.
func Sensors() []SensorDescription {
	return append([]SensorDescription(nil), sensorDescriptions...)
}

// Readings renders every sensor whose endpoint has data, plus the
// diagnostic sensors.
func (d Data) Readings() []discovery.Sensor {
	return d.ReadingsFor(Endpoints())
}

// ReadingsFor renders the sensors sourced from the given endpoints, skipping
// endpoints without data, followed by the diagnostic sensors which are
// always included.
func (d Data) ReadingsFor(endpoints []Endpoint) []discovery.Sensor {
	wanted := make(map[Endpoint]bool, len(endpoints))
	for _, e := range endpoints {
		wanted[e] = d.Has(e)
	}

	var out []discovery.Sensor
	for _, desc := range sensorDescriptions {
		if desc.Diagnostic || !wanted[desc.Source] {
			continue
		}
		out = append(out, desc.Sensor(d))
	}
	for _, desc := range sensorDescriptions {
		if desc.Diagnostic {
			out = append(out, desc.Sensor(d))
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
