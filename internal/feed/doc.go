// Package feed implements the live feed Connection Manager of the CSMS
// admin front-end.
//
// The Manager:
//   - Opens one WebSocket link to the CSMS backend, credential as a query parameter
//   - Keeps the last 50 messages for UI consumers
//   - Acks backend heartbeats and dispatches other kinds to registered handlers
//   - Schedules a single reconnect after an abnormal close
//   - Switches to a synthetic demo feed when there is no usable credential,
//     the dial fails, or the link does not open within the connect timeout
//
// Phases and what each one owns:
//
//	idle        reconnect timer (only after an abnormal close)
//	connecting  in-flight dial, connect timeout
//	connected   live link
//	fallback    demo generator ticker
//
// Every transition releases the previous phase's resources first, so a
// reconnect timer and the demo ticker never coexist.
package feed
