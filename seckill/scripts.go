package seckill

import (
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamKey is the order log shared by all vouchers
	StreamKey = "stream.orders"

	stockKeyPrefix  = "seckill:stock:"
	orderKeyPrefix  = "seckill:order:"
	windowKeyPrefix = "seckill:window:"
)

// StockKey holds the remaining admission stock of a voucher
func StockKey(voucherID int64) string {
	return stockKeyPrefix + strconv.FormatInt(voucherID, 10)
}

// OrderSetKey holds the ids of users already admitted for a voucher
func OrderSetKey(voucherID int64) string {
	return orderKeyPrefix + strconv.FormatInt(voucherID, 10)
}

// WindowKey is a hash with the begin and end of the sale in unix seconds
func WindowKey(voucherID int64) string {
	return windowKeyPrefix + strconv.FormatInt(voucherID, 10)
}

// admissionScript checks the sale window, stock and the per-user set, then
// takes one unit and appends the order to the log. Runs atomically.
//
// KEYS: stock, order set, stream, window
// ARGV: voucherId, userId, orderId, now (unix seconds)
var admissionScript = redis.NewScript(`
local stock = redis.call('get', KEYS[1])
if not stock then
	return 3
end

local now = tonumber(ARGV[4])
local window = redis.call('hmget', KEYS[4], 'begin', 'end')
if window[1] and now < tonumber(window[1]) then
	return 4
end
if window[2] and now > tonumber(window[2]) then
	return 5
end

if tonumber(stock) <= 0 then
	return 1
end
if redis.call('sismember', KEYS[2], ARGV[2]) == 1 then
	return 2
end

redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[2])
redis.call('xadd', KEYS[3], '*', 'userId', ARGV[2], 'voucherId', ARGV[1], 'id', ARGV[3], 'status', '1')
return 0
`)
