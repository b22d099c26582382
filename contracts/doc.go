// Package contracts defines the values that cross the bridge between the
// controller process and the GDN host.
//
// It contains:
//   - Message: a named, opaque payload as delivered by a transport
//   - Event payloads: the decoded forms of unsolicited inbound messages
//   - Wire payloads: ping, call request and call response bodies
//   - Errors: the timeout, decode, encode, host query and remote error types
//
// All wire payloads are JSON encoded and follow the field names the host
// side of the bridge already uses.
package contracts
