// Package value provides the closed payload value type shared by the
// entity store, the operation queue and the host transport.
//
// Entity payloads are a map of string to Value. Only Null, String, Int,
// Float, Bool, Array and Object implement Value, so a record can never
// carry channels, funcs or arbitrary structs into the durable medium.
//
// Key design constraints:
//   - Object keys are serialized in RFC 8785 order (UTF-16 code units)
//   - Strings are NFC normalized at the canonical serialization boundary
//   - Integral JSON numbers decode to Int; everything else numeric to Float
package value
