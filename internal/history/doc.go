// Package history stores valve operations and the events they produced.
//
// Every run of the scheduler, whether started from the CLI or the API, is
// recorded as an Operation. A Recorder sits between the scheduler and the
// store: it numbers each relay.Event, writes it to operation_events, and
// hands it on to live observers such as the websocket hub.
//
// The schema lives in the migrations package.
package history
