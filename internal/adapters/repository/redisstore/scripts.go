package redisstore

import "github.com/redis/go-redis/v9"

// Every script takes KEYS[1] = user hash, KEYS[2] = ranking sorted set and
// replies with the row as HMGET fields, or nil when the user does not exist.

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'name', ARGV[2], 'score', '0',
  'created', ARGV[3], 'updated', ARGV[3], 'member', ARGV[4])
redis.call('ZADD', KEYS[2], 0, ARGV[4])
return 1
`)

var setScoreScript = redis.NewScript(`
local member = redis.call('HGET', KEYS[1], 'member')
if not member then
  return false
end
redis.call('HSET', KEYS[1], 'score', ARGV[1], 'updated', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], member)
return redis.call('HMGET', KEYS[1], 'id', 'name', 'score', 'created', 'updated')
`)

var incrementScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'score')
if not cur then
  return false
end
if tonumber(cur) + tonumber(ARGV[1]) < 0 then
  return redis.error_reply('negative score')
end
local n = redis.pcall('HINCRBY', KEYS[1], 'score', ARGV[1])
if type(n) == 'table' and n.err then
  return redis.error_reply('score overflow')
end
redis.call('HSET', KEYS[1], 'updated', ARGV[2])
local member = redis.call('HGET', KEYS[1], 'member')
redis.call('ZADD', KEYS[2], string.format('%.17g', -n), member)
return redis.call('HMGET', KEYS[1], 'id', 'name', 'score', 'created', 'updated')
`)

var positionScript = redis.NewScript(`
local member = redis.call('HGET', KEYS[1], 'member')
if not member then
  return false
end
local row = redis.call('HMGET', KEYS[1], 'id', 'name', 'score', 'created', 'updated')
return {redis.call('ZRANK', KEYS[2], member), redis.call('ZCARD', KEYS[2]), row}
`)
