package badger

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/poiesic/wayfinder/core"
)

// Key prefixes for different data types
const (
	placeRecordPrefix = "plcrec:"
	placeGeoPrefix    = "plcgeo:"
	placeTagPrefix    = "plctag:"
	placeTokenPrefix  = "plctok:"
	sessionPrefix     = "sesrec:"
	sessionSigPrefix  = "sessig:"
)

// Field bits stored as the value of token index entries.
const (
	fieldName byte = 1 << iota
	fieldTags
	fieldSummary
	fieldAddress
)

// makePlaceKey generates a key for a place by ID.
// Format: prefix + id (BigEndian, so keys iterate in ID order)
func makePlaceKey(id core.ID) []byte {
	buf := make([]byte, len(placeRecordPrefix)+8)
	offset := copy(buf, placeRecordPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// placeIDFromKey extracts the ID from a place record key.
func placeIDFromKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// latBucket maps a latitude to a sortable unsigned integer at 1e-5 degree resolution.
func latBucket(lat float64) uint32 {
	return uint32(math.Round((lat + 90) * 1e5))
}

// makeGeoKey generates a composite key for the latitude index.
// Format: prefix + latBucket + id
func makeGeoKey(lat float64, id core.ID) []byte {
	buf := make([]byte, len(placeGeoPrefix)+12)
	offset := copy(buf, placeGeoPrefix)
	binary.BigEndian.PutUint32(buf[offset:], latBucket(lat))
	offset += 4
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialGeoKey generates a partial key for latitude range scans.
func makePartialGeoKey(lat float64) []byte {
	buf := make([]byte, len(placeGeoPrefix)+4)
	offset := copy(buf, placeGeoPrefix)
	binary.BigEndian.PutUint32(buf[offset:], latBucket(lat))
	return buf
}

// geoValue encodes coordinates so index scans can test a box without loading the place.
func geoValue(p core.GeoPoint) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, math.Float64bits(p.Lat))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Lng))
	return buf
}

func parseGeoValue(val []byte) (core.GeoPoint, bool) {
	if len(val) < 16 {
		return core.GeoPoint{}, false
	}
	return core.GeoPoint{
		Lat: math.Float64frombits(binary.BigEndian.Uint64(val)),
		Lng: math.Float64frombits(binary.BigEndian.Uint64(val[8:])),
	}, true
}

// makeTagKey generates a composite key for the tag index.
// Format: prefix:tag:id
func makeTagKey(tag string, id core.ID) []byte {
	return appendID(makePartialTagKey(tag), id)
}

// makePartialTagKey generates a partial key for tag lookups.
func makePartialTagKey(tag string) []byte {
	return []byte(placeTagPrefix + tag + ":")
}

// makeTokenKey generates a composite key for the full-text token index.
// Format: prefix:token:id
func makeTokenKey(token string, id core.ID) []byte {
	return appendID(makePartialTokenKey(token), id)
}

// makePartialTokenKey generates a partial key for token lookups.
func makePartialTokenKey(token string) []byte {
	return []byte(placeTokenPrefix + token + ":")
}

// makeSessionKey generates a key for a session profile.
func makeSessionKey(sessionID string) []byte {
	return []byte(sessionPrefix + sessionID)
}

// makeSignalKey generates a composite key for a session's search signals.
// Format: prefix:sessionID:timestamp
func makeSignalKey(sessionID string, at time.Time) []byte {
	prefix := makePartialSignalKey(sessionID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(at.UnixNano()))
	return buf
}

// makePartialSignalKey generates a partial key for a session's signals.
func makePartialSignalKey(sessionID string) []byte {
	return []byte(sessionSigPrefix + sessionID + ":")
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processorType))
}

func appendID(prefix []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(prefix, uint64(id))
}
