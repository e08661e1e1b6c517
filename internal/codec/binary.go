// Package codec implements the dispatch core's BinaryCodec (component C2,
// spec §4.2): a fixed-layout binary location frame, a compact single-letter
// JSON variant, and content negotiation between the two and standard JSON.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
)

// Sizes of the two binary layouts in bytes.
const (
	SizeLocation         = 24 // lat, lng, heading, speed, timestamp, h3 prefix
	SizeLocationExtended = 32 // SizeLocation plus an 8-byte driverId fingerprint
	batchHeaderSize      = 2  // uint16 count header
)

// Location is one decoded location sample.
type Location struct {
	Lat          float64
	Lng          float64
	Heading      float64 // degrees, clamped to [0, 360)
	Speed        float64 // km/h, clamped to >= 0
	TimestampSec uint32
	H3Prefix     []byte // first 8 bytes of the hex-decoded H3 index, nil if absent
	DriverID     []byte // 8-byte fingerprint, only set when decoded from the extended layout
}

var (
	// ErrShortBuffer is returned when a buffer is too small for the requested layout.
	ErrShortBuffer = errors.New("codec: buffer too short")
)

// EncodeLocation writes loc into the fixed 24-byte layout:
// lat float32 LE (0), lng float32 LE (4), heading*100 uint16 LE (8),
// speed*100 uint16 LE (10), timestampSec uint32 LE (12), h3 prefix (16..24).
func EncodeLocation(loc Location) [SizeLocation]byte {
	var buf [SizeLocation]byte
	putFloat32LE(buf[0:4], float32(loc.Lat))
	putFloat32LE(buf[4:8], float32(loc.Lng))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(clampHeading(loc.Heading)*100))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(clampSpeed(loc.Speed)*100))
	binary.LittleEndian.PutUint32(buf[12:16], loc.TimestampSec)
	copy(buf[16:24], loc.H3Prefix)
	return buf
}

// EncodeLocationExtended writes loc into the 32-byte layout: an 8-byte
// driverId fingerprint prepended to the 24-byte location layout.
func EncodeLocationExtended(loc Location) [SizeLocationExtended]byte {
	var buf [SizeLocationExtended]byte
	copy(buf[0:8], loc.DriverID)
	inner := EncodeLocation(loc)
	copy(buf[8:32], inner[:])
	return buf
}

// DecodeLocation reads the fixed 24-byte layout. All-zero H3 bytes are
// treated as absent (H3Prefix is left nil).
func DecodeLocation(buf []byte) (Location, error) {
	if len(buf) < SizeLocation {
		return Location{}, ErrShortBuffer
	}
	loc := Location{
		Lat:          float64(getFloat32LE(buf[0:4])),
		Lng:          float64(getFloat32LE(buf[4:8])),
		Heading:      clampHeading(float64(binary.LittleEndian.Uint16(buf[8:10])) / 100),
		Speed:        clampSpeed(float64(binary.LittleEndian.Uint16(buf[10:12])) / 100),
		TimestampSec: binary.LittleEndian.Uint32(buf[12:16]),
	}
	h3Bytes := buf[16:24]
	if !allZero(h3Bytes) {
		loc.H3Prefix = append([]byte(nil), h3Bytes...)
	}
	return loc, nil
}

// DecodeLocationExtended reads the 32-byte layout: an 8-byte driverId
// fingerprint followed by the 24-byte location layout.
func DecodeLocationExtended(buf []byte) (Location, error) {
	if len(buf) < SizeLocationExtended {
		return Location{}, ErrShortBuffer
	}
	loc, err := DecodeLocation(buf[8:32])
	if err != nil {
		return Location{}, err
	}
	driverID := buf[0:8]
	if !allZero(driverID) {
		loc.DriverID = append([]byte(nil), driverID...)
	}
	return loc, nil
}

// EncodeBatch writes a uint16 count header followed by count*24 bytes, one
// fixed-layout frame per location, preserving order.
func EncodeBatch(locs []Location) ([]byte, error) {
	if len(locs) > 0xFFFF {
		return nil, errors.New("codec: batch too large")
	}
	out := make([]byte, batchHeaderSize+len(locs)*SizeLocation)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(locs)))
	for i, loc := range locs {
		frame := EncodeLocation(loc)
		offset := batchHeaderSize + i*SizeLocation
		copy(out[offset:offset+SizeLocation], frame[:])
	}
	return out, nil
}

// DecodeBatch reads a batch frame produced by EncodeBatch, preserving order.
func DecodeBatch(buf []byte) ([]Location, error) {
	if len(buf) < batchHeaderSize {
		return nil, ErrShortBuffer
	}
	count := int(binary.LittleEndian.Uint16(buf[0:2]))
	want := batchHeaderSize + count*SizeLocation
	if len(buf) < want {
		return nil, ErrShortBuffer
	}
	out := make([]Location, count)
	for i := 0; i < count; i++ {
		offset := batchHeaderSize + i*SizeLocation
		loc, err := DecodeLocation(buf[offset : offset+SizeLocation])
		if err != nil {
			return nil, err
		}
		out[i] = loc
	}
	return out, nil
}

// H3PrefixFromIndex returns the first 8 bytes of the hex-decoded H3 index
// string, for embedding in the fixed binary layout.
func H3PrefixFromIndex(h3Index string) []byte {
	decoded, err := hex.DecodeString(h3Index)
	if err != nil {
		return nil
	}
	if len(decoded) > 8 {
		decoded = decoded[:8]
	}
	return decoded
}

func clampHeading(h float64) float64 {
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

func clampSpeed(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func putFloat32LE(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

func getFloat32LE(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}
