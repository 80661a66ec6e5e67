// Package clublogbridge polls the ClubLog API and republishes the results as
// Home Assistant sensors.
//
// Six upstream resources are polled, each on its own interval: the DXCC
// matrix, the watch summary, the most wanted list, active expeditions,
// active livestreams and band activity. See [Endpoints].
//
// # Operating Modes
//
// Standalone mode runs a [Bridge], which wakes every 30 seconds, fetches the
// endpoints that are due and publishes the refreshed sensors over MQTT
// discovery:
//
//	b, err := clublogbridge.New(
//	    clublogbridge.WithCredentials(clublog.Credentials{
//	        APIKey:      apiKey,
//	        Email:       email,
//	        AppPassword: appPassword,
//	        Callsign:    "M0ABC",
//	    }),
//	    clublogbridge.WithMQTT(discovery.Config{Broker: "mqtt.local"}),
//	)
//	if err != nil {
//	    return err
//	}
//	return b.Start(ctx) // blocks until ctx is cancelled
//
// Coordinator mode lets a host platform drive polling itself. The host calls
// [Coordinator.Update] on its own schedule and renders entities from the
// returned [Data]:
//
//	c, err := clublogbridge.NewCoordinator(creds)
//	...
//	data, err := c.Update(ctx)
//	if errors.Is(err, clublogbridge.ErrUpdateFailed) {
//	    // no usable data yet; mark entities unavailable
//	}
//
// # Failure Handling
//
// Endpoint failures are isolated: one failing endpoint only increments its
// own error counter. An HTTP 403 from any endpoint pauses every request for
// one hour, after which endpoints resume with a 5-second stagger. Update
// reports [ErrUpdateFailed] only when every attempted fetch failed and no
// endpoint has ever succeeded; otherwise the last good values are served.
//
// # Sensors
//
// [Sensors] lists every published entity. [Data.Readings] renders them
// against the current data.
package clublogbridge
