package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/scorepipe/internal/domain/model"
)

const redisDialTimeout = 5 * time.Second

// RedisOrphans implements OrphanStore on Redis so several pipeline processes
// share one orphan state. The user set-add and the chart claim run inside
// MULTI/EXEC.
//
// Keys (under prefix):
//
//	orphan:charts            hash fingerprint -> chart record
//	orphan:users:<fp>        set of user IDs
//	orphan:score:<id>        orphan score JSON
//	orphan:scores            set of every orphan ID
//	orphan:fp:<fp>           set of orphan IDs for a fingerprint
type RedisOrphans struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ OrphanStore = (*RedisOrphans)(nil)

// DialRedisOrphans connects to addr and checks the connection.
func DialRedisOrphans(ctx context.Context, addr, prefix string) (*RedisOrphans, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: redisDialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisOrphans(rdb, prefix), nil
}

// NewRedisOrphans wraps an existing client.
func NewRedisOrphans(rdb goredis.UniversalClient, prefix string) *RedisOrphans {
	if prefix == "" {
		prefix = "scorepipe"
	}
	return &RedisOrphans{rdb: rdb, prefix: prefix}
}

func (r *RedisOrphans) chartsKey() string            { return r.prefix + ":orphan:charts" }
func (r *RedisOrphans) usersKey(fp string) string    { return r.prefix + ":orphan:users:" + fp }
func (r *RedisOrphans) scoreKey(id string) string    { return r.prefix + ":orphan:score:" + id }
func (r *RedisOrphans) allScoresKey() string         { return r.prefix + ":orphan:scores" }
func (r *RedisOrphans) fpScoresKey(fp string) string { return r.prefix + ":orphan:fp:" + fp }

// PutOrphanScore implements OrphanStore.
func (r *RedisOrphans) PutOrphanScore(ctx context.Context, s *model.OrphanScore) (bool, error) {
	if s == nil || s.OrphanID == "" {
		return false, ErrInvalidDocument
	}
	b, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("encode orphan score: %w", err)
	}
	// The score and its index entries commit together; re-adding an ID to
	// the index sets is a no-op.
	var set *goredis.BoolCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		set = pipe.SetNX(ctx, r.scoreKey(s.OrphanID), b, 0)
		pipe.SAdd(ctx, r.allScoresKey(), s.OrphanID)
		pipe.SAdd(ctx, r.fpScoresKey(s.Fingerprint), s.OrphanID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store orphan score: %w", err)
	}
	return set.Val(), nil
}

// AttachUser implements OrphanStore.
func (r *RedisOrphans) AttachUser(ctx context.Context, chart *model.OrphanChart, userID string) (int, error) {
	if chart == nil || chart.Fingerprint == "" {
		return 0, ErrInvalidDocument
	}
	record := *chart
	record.UserIDs = nil
	b, err := json.Marshal(&record)
	if err != nil {
		return 0, fmt.Errorf("encode orphan chart: %w", err)
	}
	var card *goredis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, r.chartsKey(), chart.Fingerprint, b)
		pipe.SAdd(ctx, r.usersKey(chart.Fingerprint), userID)
		card = pipe.SCard(ctx, r.usersKey(chart.Fingerprint))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("attach orphan user: %w", err)
	}
	return int(card.Val()), nil
}

// GetOrphanChart implements OrphanStore.
func (r *RedisOrphans) GetOrphanChart(ctx context.Context, fingerprint string) (*model.OrphanChart, error) {
	raw, err := r.rdb.HGet(ctx, r.chartsKey(), fingerprint).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: orphan chart %s", ErrNotFound, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("get orphan chart: %w", err)
	}
	users, err := r.rdb.SMembers(ctx, r.usersKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("get orphan users: %w", err)
	}
	return decodeOrphanChart(raw, users)
}

func decodeOrphanChart(raw string, users []string) (*model.OrphanChart, error) {
	var c model.OrphanChart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode orphan chart: %w", err)
	}
	sort.Strings(users)
	c.UserIDs = users
	return &c, nil
}

// ClaimOrphanChart implements OrphanStore. HDEL returning 1 decides the
// winner when several resolvers race.
func (r *RedisOrphans) ClaimOrphanChart(ctx context.Context, fingerprint string) (*model.OrphanChart, bool, error) {
	var (
		get     *goredis.StringCmd
		members *goredis.StringSliceCmd
		del     *goredis.IntCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.HGet(ctx, r.chartsKey(), fingerprint)
		members = pipe.SMembers(ctx, r.usersKey(fingerprint))
		del = pipe.HDel(ctx, r.chartsKey(), fingerprint)
		pipe.Del(ctx, r.usersKey(fingerprint))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, false, fmt.Errorf("claim orphan chart: %w", err)
	}
	if del.Val() != 1 {
		return nil, false, nil
	}
	c, err := decodeOrphanChart(get.Val(), members.Val())
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// OrphanScoresFor implements OrphanStore.
func (r *RedisOrphans) OrphanScoresFor(ctx context.Context, fingerprint string) ([]*model.OrphanScore, error) {
	return r.ListOrphanScores(ctx, OrphanFilter{Fingerprint: fingerprint})
}

// ListOrphanScores implements OrphanStore.
func (r *RedisOrphans) ListOrphanScores(ctx context.Context, filter OrphanFilter) ([]*model.OrphanScore, error) {
	index := r.allScoresKey()
	if filter.Fingerprint != "" {
		index = r.fpScoresKey(filter.Fingerprint)
	}
	ids, err := r.rdb.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphan ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.scoreKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load orphan scores: %w", err)
	}
	out := make([]*model.OrphanScore, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		var s model.OrphanScore
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode orphan score: %w", err)
		}
		if filter.match(&s) {
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimeInserted.Equal(out[j].TimeInserted) {
			return out[i].TimeInserted.Before(out[j].TimeInserted)
		}
		return out[i].OrphanID < out[j].OrphanID
	})
	return out, nil
}

// DeleteOrphanScore implements OrphanStore.
func (r *RedisOrphans) DeleteOrphanScore(ctx context.Context, orphanID string) error {
	raw, err := r.rdb.Get(ctx, r.scoreKey(orphanID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get orphan score: %w", err)
	}
	var s model.OrphanScore
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("decode orphan score: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.scoreKey(orphanID))
		pipe.SRem(ctx, r.allScoresKey(), orphanID)
		pipe.SRem(ctx, r.fpScoresKey(s.Fingerprint), orphanID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete orphan score: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisOrphans) Close() error {
	return r.rdb.Close()
}
