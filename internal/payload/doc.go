// Package payload is the object format used for everything that crosses a
// boundary of the scripting runtime: script deliveries, incoming and outgoing
// events, persisted script records and bus channel data.
//
// Values are a sealed set (String, Int, Bool, Array, Object). Floats and null
// are rejected at decode time, which keeps event values integral and lets the
// mailbox treat any decode failure as a malformed payload.
//
// Marshal produces canonical JSON: object keys sorted by UTF-16 code units,
// strings NFC-normalized, no HTML escaping, no insignificant whitespace. Two
// equal objects always encode to identical bytes, so encoded payloads can be
// compared and hashed directly.
package payload
