package redis

const (
	// usageTTLSeconds bounds how long sessions and rollups live (90 days).
	usageTTLSeconds = 7776000

	// insertSessionScript atomically writes a finished session, its time index,
	// and the daily rollup for the session's start date.
	insertSessionScript = `
local session_key = KEYS[1]     -- screenguard:session:{id}
local sessions_index = KEYS[2]  -- screenguard:sessions
local usage_key = KEYS[3]       -- screenguard:usage:daily:{date}:{package}
local day_index = KEYS[4]       -- screenguard:usage:daily:index:{date}
local dates_index = KEYS[5]     -- screenguard:usage:daily:dates

local id = ARGV[1]
local package_name = ARGV[2]
local start_time = ARGV[3]
local end_time = ARGV[4]
local duration_ms = ARGV[5]
local start_score = ARGV[6]
local date = ARGV[7]
local ttl = ARGV[8]

if redis.call('EXISTS', session_key) == 1 then
  return redis.error_reply('session already exists: ' .. id)
end

redis.call('HSET', session_key,
  'id', id,
  'package_name', package_name,
  'start_time', start_time,
  'end_time', end_time,
  'duration_ms', duration_ms
)
redis.call('EXPIRE', session_key, ttl)
redis.call('ZADD', sessions_index, start_score, id)

if redis.call('EXISTS', usage_key) == 0 then
  redis.call('HSET', usage_key,
    'date', date,
    'package_name', package_name,
    'total_ms', 0,
    'sessions', 0
  )
end
redis.call('HINCRBY', usage_key, 'total_ms', duration_ms)
redis.call('HINCRBY', usage_key, 'sessions', 1)
redis.call('EXPIRE', usage_key, ttl)

redis.call('SADD', day_index, package_name)
redis.call('EXPIRE', day_index, ttl)
redis.call('SADD', dates_index, date)

return 'OK'
`

	// deleteDayScript removes every rollup recorded for a date.
	deleteDayScript = `
local day_index = KEYS[1]    -- screenguard:usage:daily:index:{date}
local dates_index = KEYS[2]  -- screenguard:usage:daily:dates
local prefix = ARGV[1]       -- screenguard:usage:daily:{date}:
local date = ARGV[2]

local deleted = 0
local packages = redis.call('SMEMBERS', day_index)
for _, package_name in ipairs(packages) do
  deleted = deleted + redis.call('DEL', prefix .. package_name)
end
redis.call('DEL', day_index)
redis.call('SREM', dates_index, date)

return deleted
`
)
