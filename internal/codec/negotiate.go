package codec

// Encoding identifies which wire format a request/response body uses,
// selected by content negotiation on the Accept / Content-Type header
// (spec §4.2, §6 "POST /location/binary").
type Encoding int

const (
	// EncodingJSON is the fallback: standard field-named JSON.
	EncodingJSON Encoding = iota
	// EncodingBinary is the fixed 24/32-byte layout.
	EncodingBinary
	// EncodingCompact is the single-letter-key JSON variant.
	EncodingCompact
)

const (
	ContentTypeBinary  = "application/octet-stream"
	ContentTypeCompact = "application/x-raahi-compact"
	ContentTypeJSON    = "application/json"
)

// NegotiateEncoding maps an Accept (or Content-Type) header value to an
// Encoding. Unrecognised or empty values fall back to JSON.
func NegotiateEncoding(header string) Encoding {
	switch header {
	case ContentTypeBinary:
		return EncodingBinary
	case ContentTypeCompact:
		return EncodingCompact
	default:
		return EncodingJSON
	}
}

// ContentTypeFor returns the canonical Content-Type for an Encoding, used to
// echo the negotiated type back on the response (spec §6 "response echoes
// content type").
func ContentTypeFor(enc Encoding) string {
	switch enc {
	case EncodingBinary:
		return ContentTypeBinary
	case EncodingCompact:
		return ContentTypeCompact
	default:
		return ContentTypeJSON
	}
}
