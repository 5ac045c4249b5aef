// Package codec provides the value (de)serializers the cacheaside engine
// stores bytes with. The store holds opaque payloads; a Codec is the only
// component that understands them.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
