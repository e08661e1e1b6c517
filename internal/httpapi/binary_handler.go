package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/codec"
	"github.com/raahi/dispatch-core/internal/driverstore"
)

// BinaryHandler implements POST /location/binary (spec §4.2, §6): a
// content-negotiated location submit supporting the fixed binary layout,
// the compact single-letter JSON variant, and standard JSON.
type BinaryHandler struct {
	drivers *driverstore.Store
}

// NewBinaryHandler wires the codec-negotiated endpoint to RAMEN.
func NewBinaryHandler(drivers *driverstore.Store) *BinaryHandler {
	return &BinaryHandler{drivers: drivers}
}

// jsonLocation is the standard-JSON fallback shape (spec §6 "standard
// JSON" — the third encoding NegotiateEncoding falls back to).
type jsonLocation struct {
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Heading *float64 `json:"heading"`
	Speed   *float64 `json:"speed"`
}

// SubmitLocation handles POST /location/binary. The request's Content-Type
// selects the decoder; the response echoes the same Content-Type (spec §6
// "response echoes content type").
func (h *BinaryHandler) SubmitLocation(c *gin.Context) {
	enc := codec.NegotiateEncoding(c.GetHeader("Content-Type"))
	driver := driverID(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	var lat, lng float64
	var heading, speed *float64

	switch enc {
	case codec.EncodingBinary:
		loc, decodeErr := decodeBinaryLocation(body)
		if decodeErr != nil {
			badRequest(c, decodeErr.Error())
			return
		}
		lat, lng = loc.Lat, loc.Lng
		headingVal, speedVal := loc.Heading, loc.Speed
		heading, speed = &headingVal, &speedVal
	case codec.EncodingCompact:
		loc, _, _, decodeErr := codec.UnmarshalCompact(body)
		if decodeErr != nil {
			badRequest(c, "invalid compact payload: "+decodeErr.Error())
			return
		}
		lat, lng = loc.Lat, loc.Lng
		headingVal, speedVal := loc.Heading, loc.Speed
		heading, speed = &headingVal, &speedVal
	default:
		var payload jsonLocation
		if decodeErr := json.Unmarshal(body, &payload); decodeErr != nil {
			badRequest(c, "invalid json payload: "+decodeErr.Error())
			return
		}
		lat, lng, heading, speed = payload.Lat, payload.Lng, payload.Heading, payload.Speed
	}

	if _, err := h.drivers.UpdateLocation(driver, lat, lng, heading, speed); err != nil {
		respondError(c, err)
		return
	}
	rec, _ := h.drivers.Get(driver)

	c.Header("Content-Type", codec.ContentTypeFor(enc))
	writeLocationResponse(c, enc, driver, rec)
}

func decodeBinaryLocation(body []byte) (codec.Location, error) {
	switch len(body) {
	case codec.SizeLocation:
		return codec.DecodeLocation(body)
	case codec.SizeLocationExtended:
		return codec.DecodeLocationExtended(body)
	default:
		return codec.Location{}, apperrors.Validation("binary location body must be exactly 24 or 32 bytes", nil)
	}
}

func writeLocationResponse(c *gin.Context, enc codec.Encoding, driverID string, rec driverstore.Record) {
	var loc codec.Location
	if rec.Lat != nil {
		loc.Lat = *rec.Lat
	}
	if rec.Lng != nil {
		loc.Lng = *rec.Lng
	}
	if rec.Heading != nil {
		loc.Heading = *rec.Heading
	}
	if rec.Speed != nil {
		loc.Speed = *rec.Speed
	}
	h3Index := ""
	if rec.H3Index != nil {
		h3Index = *rec.H3Index
		loc.H3Prefix = codec.H3PrefixFromIndex(h3Index)
	}

	switch enc {
	case codec.EncodingBinary:
		frame := codec.EncodeLocation(loc)
		c.Data(http.StatusOK, codec.ContentTypeBinary, frame[:])
	case codec.EncodingCompact:
		out, err := codec.MarshalCompact(loc, h3Index, driverID)
		if err != nil {
			respondError(c, apperrors.Internal("failed to encode compact response", err))
			return
		}
		c.Data(http.StatusOK, codec.ContentTypeCompact, out)
	default:
		c.JSON(http.StatusOK, jsonLocation{Lat: loc.Lat, Lng: loc.Lng, Heading: &loc.Heading, Speed: &loc.Speed})
	}
}
