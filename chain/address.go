package chain

import "bywise/cryptoutil"

// Address is an opaque, self-describing string (the "BWS" prefix scheme of
// cryptoutil) that decodes to a 20-byte key.
type Address string

// Valid reports whether a decodes and checksums correctly.
func (a Address) Valid() bool {
	_, err := cryptoutil.DecodeAddress(string(a))
	return err == nil
}

// Raw decodes a to its 20-byte form.
func (a Address) Raw() (cryptoutil.RawAddress, error) {
	return cryptoutil.DecodeAddress(string(a))
}

// String satisfies fmt.Stringer.
func (a Address) String() string { return string(a) }
