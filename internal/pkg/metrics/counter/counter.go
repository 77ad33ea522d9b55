package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// PendingUsageKey holds not-yet-flushed usage units per entitlement ID.
const PendingUsageKey = "usage:counters:pending"

// UsageCounter buffers metered usage in Redis and drains it into the
// entitlements table in batches.
type UsageCounter struct {
	rdb *redis.Client
	db  *gorm.DB
	key string
}

func NewUsageCounter(rdb *redis.Client, db *gorm.DB) *UsageCounter {
	return &UsageCounter{rdb: rdb, db: db, key: PendingUsageKey}
}

// Add increments pending usage for an entitlement and returns the new pending total.
func (c *UsageCounter) Add(ctx context.Context, entitlementID uint, amount int64) (int64, error) {
	field := strconv.FormatUint(uint64(entitlementID), 10)
	return c.rdb.HIncrBy(ctx, c.key, field, amount).Result()
}

// Pending returns usage recorded but not yet flushed.
func (c *UsageCounter) Pending(ctx context.Context, entitlementID uint) (int64, error) {
	field := strconv.FormatUint(uint64(entitlementID), 10)
	v, err := c.rdb.HGet(ctx, c.key, field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Discard drops usage buffered for an entitlement and returns how much was
// dropped. Used when a new billing period starts and old usage must not
// count against it.
func (c *UsageCounter) Discard(ctx context.Context, entitlementID uint) (int64, error) {
	field := strconv.FormatUint(uint64(entitlementID), 10)
	var get *redis.StringCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, c.key, field)
		p.HDel(ctx, c.key, field)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	n, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// orphanAge is how old a flush's temporary hash must be before another
// flush treats it as abandoned and merges it back.
const orphanAge = 5 * time.Minute

// Flush drains the pending hash into entitlements.used_this_period.
// The hash is renamed first so increments arriving mid-flush land in a new
// hash. If the UPDATE fails the units are merged back into the pending hash.
func (c *UsageCounter) Flush(ctx context.Context) (int, error) {
	if err := c.recoverOrphans(ctx, time.Now()); err != nil {
		return 0, fmt.Errorf("recover abandoned flush: %w", err)
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		if isNoSuchKey(err) {
			return 0, nil
		}
		return 0, err
	}

	// On a read error the hash stays under tmpKey for recoverOrphans.
	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return 0, err
	}

	deltas := parseDeltas(data)
	if len(deltas) > 0 {
		sql, args := buildIncrementSQL("entitlements", "used_this_period", deltas)
		if err := c.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
			if rerr := c.restore(ctx, tmpKey, data); rerr != nil {
				return 0, errors.Join(err, fmt.Errorf("restore pending usage: %w", rerr))
			}
			return 0, err
		}
	}
	if err := c.rdb.Del(ctx, tmpKey).Err(); err != nil {
		return len(deltas), err
	}
	return len(deltas), nil
}

// restore adds the fields of a drained hash back onto the pending hash and
// drops the drained copy in one transaction.
func (c *UsageCounter) restore(ctx context.Context, tmpKey string, data map[string]string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for field, v := range data {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n == 0 {
				continue
			}
			p.HIncrBy(ctx, c.key, field, n)
		}
		p.Del(ctx, tmpKey)
		return nil
	})
	return err
}

// recoverOrphans merges back temporary hashes left by flushes that died
// before finishing, e.g. on a crash between RENAME and DEL.
func (c *UsageCounter) recoverOrphans(ctx context.Context, now time.Time) error {
	prefix := c.key + ":tmp:"
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		nanos, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil || now.Sub(time.Unix(0, nanos)) < orphanAge {
			continue
		}
		data, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if err := c.restore(ctx, key, data); err != nil {
			return err
		}
	}
	return iter.Err()
}

type delta struct {
	id  uint64
	inc int64
}

func parseDeltas(data map[string]string) []delta {
	out := make([]delta, 0, len(data))
	for k, v := range data {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		out = append(out, delta{id: id, inc: inc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// buildIncrementSQL composes
// UPDATE t SET col = col + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func buildIncrementSQL(table, column string, deltas []delta) (string, []interface{}) {
	var b strings.Builder
	args := make([]interface{}, 0, len(deltas)*3)
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(column)
	b.WriteString(" = ")
	b.WriteString(column)
	b.WriteString(" + CASE id")
	for _, d := range deltas {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, d.id, d.inc)
	}
	b.WriteString(" END WHERE id IN (")
	for i, d := range deltas {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
		args = append(args, d.id)
	}
	b.WriteString(")")
	return b.String(), args
}

func isNoSuchKey(err error) bool {
	return errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key")
}
