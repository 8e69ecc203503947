// Package protocol implements the event framing used on the wire.
// Each event is a JSON header line carrying the event type and the lengths
// of the data document and raw payload that follow it, which is how Wyoming
// clients such as Home Assistant exchange ASR events.
package protocol
