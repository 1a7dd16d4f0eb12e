package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/frostline/rehydrate/pkg/types"
)

// PK/SK prefix constants.
const (
	prefixGranule  = "GRANULE#"
	prefixRequest  = "REQUEST#"
	prefixFile     = "FILE#"
	prefixEvent    = "EVENT#"
	prefixLock     = "LOCK#"
	prefixLocation = "LOC#"
	prefixStatus   = "STATUS#"

	skConfig = "CONFIG"
	skLock   = "LOCK"
)

func granulePK(granuleID string) string { return prefixGranule + granuleID }
func requestPK(requestID string) string { return prefixRequest + requestID }
func lockPK(key string) string          { return prefixLock + key }

func fileSK(fileKey string) string { return prefixFile + fileKey }

// fileListSK keys the per-request list copy of a record.
func fileListSK(granuleID, fileKey string) string {
	return prefixFile + granuleID + "#" + fileKey
}

func requestSK() string { return skConfig }
func lockSK() string    { return skLock }

func locationGSIPK(location string) string { return prefixLocation + location }

func statusGSIPK(status types.FileStatus) string { return prefixStatus + string(status) }

func statusGSISK(updatedAt time.Time) string {
	return updatedAt.UTC().Format(time.RFC3339Nano)
}

// eventSK orders audit events per file by millisecond timestamp with a random
// nonce to avoid same-millisecond collisions.
func eventSK(fileKey string, ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%s#%013d#%s", prefixEvent, fileKey, millis, hex.EncodeToString(nonce))
}

func eventPrefix(fileKey string) string {
	return prefixEvent + fileKey + "#"
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}
