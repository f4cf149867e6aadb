package store

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"
)

// PointID derives the stable numeric point id for a record key: the first
// eight bytes of SHA-256(key), big-endian, shifted right one bit so the
// value fits in a signed 64-bit integer everywhere.
func PointID(key string) uint64 {
	digest := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(digest[:8]) >> 1
}

// Record keys. Memories use their id directly; the other kinds prefix the
// owning user so one tenant's records never collide with another's.

func journalKey(userID string, ts time.Time, content string) string {
	sec := strconv.FormatFloat(epochSeconds(ts), 'f', -1, 64)
	return "journal:" + userID + ":" + sec + ":" + truncateRunes(content, 50)
}

func identityKey(userID string) string {
	return "identity:" + userID
}

func ruleKey(userID, ruleID string) string {
	return "rule:" + userID + ":" + ruleID
}

// epochSeconds converts t to Unix seconds with microsecond precision,
// the resolution the persisted timestamps carry.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// timeFromEpoch is the inverse of epochSeconds.
func timeFromEpoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(sec * 1e6)).UTC()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
