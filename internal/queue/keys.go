package queue

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key prefixes for the engine's data structures. Every key lives under q/.
const (
	prefixJob    = "q/job/"    // canonical job records
	prefixQueues = "q/queues/" // queue markers (first-seen ms)
	prefixMeta   = "q/meta/"   // per-queue waiting/scheduled/leased counters
	prefixWait   = "q/wait/"   // waiting index, (priority, enqueued_ms) ordered
	prefixSched  = "q/sched/"  // scheduled index, ready_ms ordered
	prefixLocks  = "q/locks/"  // lease index, expires_ms ordered
	prefixWorker = "q/worker/" // jobs currently leased per worker
	prefixFailed = "q/failed/" // failure ledger, grouped by category
	prefixTag    = "q/tag/"    // tag index
	prefixStats  = "q/stats/"  // per (queue, day) statistics buckets
	prefixDone   = "q/done/"   // bounded completed-log entries
)

const doneMetaKeyStr = "q/done_meta"

// encodePriority maps a signed priority onto unsigned bytes so that ascending
// byte order equals ascending signed order (lower = more urgent).
func encodePriority(p int64) uint64 {
	return uint64(p) ^ (1 << 63)
}

func decodePriority(u uint64) int64 {
	return int64(u ^ (1 << 63))
}

// validateName rejects queue/worker/tag/category names that would break key
// parsing. Job ids only ever appear as the trailing segment of a key, so
// their content is unconstrained.
func validateName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s required", kind)
	}
	if strings.ContainsAny(s, "/\x00") {
		return fmt.Errorf("%s must not contain '/' or NUL", kind)
	}
	return nil
}

func jobKey(id string) []byte {
	return []byte(prefixJob + id)
}

func queueMarkerKey(queue string) []byte {
	return []byte(prefixQueues + queue)
}

func metaKey(queue string) []byte {
	return []byte(prefixMeta + queue)
}

// waitKey orders waiting jobs by (priority, enqueued_ms, id).
// Format: q/wait/{queue}/{prio:8}{enqueued_ms:8}{id}
func waitKey(queue string, priority, enqueuedMs int64, id string) []byte {
	prefix := prefixWait + queue + "/"
	key := make([]byte, len(prefix)+16+len(id))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], encodePriority(priority))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], uint64(enqueuedMs))
	copy(key[len(prefix)+16:], id)
	return key
}

// schedKey orders scheduled jobs by ready time.
// Format: q/sched/{queue}/{ready_ms:8}{id}
func schedKey(queue string, readyMs int64, id string) []byte {
	prefix := prefixSched + queue + "/"
	key := make([]byte, len(prefix)+8+len(id))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(readyMs))
	copy(key[len(prefix)+8:], id)
	return key
}

// lockKey orders leased jobs by lease expiry.
// Format: q/locks/{queue}/{expires_ms:8}{id}
func lockKey(queue string, expiresMs int64, id string) []byte {
	prefix := prefixLocks + queue + "/"
	key := make([]byte, len(prefix)+8+len(id))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiresMs))
	copy(key[len(prefix)+8:], id)
	return key
}

func workerKey(worker, id string) []byte {
	return []byte(prefixWorker + worker + "/" + id)
}

func failedKey(category, id string) []byte {
	return []byte(prefixFailed + category + "/" + id)
}

func tagKey(tag, id string) []byte {
	return []byte(prefixTag + tag + "/" + id)
}

// statsKey addresses the bucket for a queue on a UTC calendar day.
// Format: q/stats/{queue}/{day_start_sec:8}
func statsKey(queue string, dayStartSec int64) []byte {
	prefix := prefixStats + queue + "/"
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(dayStartSec))
	return key
}

func doneKey(stamp []byte) []byte {
	key := make([]byte, len(prefixDone)+len(stamp))
	copy(key, prefixDone)
	copy(key[len(prefixDone):], stamp)
	return key
}

func doneMetaKey() []byte {
	return []byte(doneMetaKeyStr)
}

func waitPrefix(queue string) string   { return prefixWait + queue + "/" }
func schedPrefix(queue string) string  { return prefixSched + queue + "/" }
func lockPrefix(queue string) string   { return prefixLocks + queue + "/" }
func workerPrefix(worker string) string { return prefixWorker + worker + "/" }
func failedCatPrefix(category string) string { return prefixFailed + category + "/" }

// keyRange returns inclusive-lower/exclusive-upper bounds covering every key
// under prefix, including suffixes with leading 0xFF bytes (extreme encoded
// priorities). Callers always pass prefixes ending in '/'.
func keyRange(prefix string) ([]byte, []byte) {
	lo := []byte(prefix)
	hi := []byte(prefix)
	hi[len(hi)-1]++
	return lo, hi
}

// idFromIndexKey extracts the trailing job id from an index key whose layout
// is {prefix}{fixed bytes}{id}.
func idFromIndexKey(key []byte, prefixLen, fixedLen int) string {
	off := prefixLen + fixedLen
	if len(key) < off {
		return ""
	}
	return string(key[off:])
}

// sortFieldFromIndexKey reads the big-endian uint64 at the given offset past
// the prefix (priority, ready time, or lease expiry depending on the index).
func sortFieldFromIndexKey(key []byte, prefixLen, fieldOff int) (uint64, bool) {
	off := prefixLen + fieldOff
	if len(key) < off+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[off : off+8]), true
}

// nameFromMarkerKey extracts the trailing name from flat keys like
// q/queues/{name} or q/worker/{worker}/{id}.
func nameFromMarkerKey(key []byte, prefixLen int) string {
	if len(key) < prefixLen {
		return ""
	}
	return string(key[prefixLen:])
}
