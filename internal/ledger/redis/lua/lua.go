// Package lua holds the Redis server-side scripts used by the ledger.
package lua

// CompareAndSwap replaces a record value only when the stored version matches
// the expected one, and moves the record's status-index member in the same
// atomic step. The caller reads the record first to learn the current status
// key; the version check inside the script guarantees that status is still
// accurate when the swap lands.
//
//	KEYS[1] record key
//	KEYS[2] status index holding the record before the swap
//	KEYS[3] status index the record moves to
//	ARGV[1] expected version
//	ARGV[2] new record JSON
//	ARGV[3] index member
//	ARGV[4] index score
//
// Returns 1 on swap, 0 on a missing record or version mismatch.
const CompareAndSwap = `
local current = redis.call('GET', KEYS[1])
if not current then
  return 0
end
local record = cjson.decode(current)
if tonumber(record.version) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
if KEYS[2] ~= KEYS[3] then
  redis.call('ZREM', KEYS[2], ARGV[3])
end
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[3])
return 1
`
