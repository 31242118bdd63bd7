package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
)

const redisTimeout = 5 * time.Second

// redisWrite sets the fields of a hash and moves its member between index sets
type redisWrite struct {
	key    string
	fields map[string]string
	member string
	add    []string
	remove []string
}

type redisClient interface {
	Ping(ctx context.Context) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	Write(ctx context.Context, w *redisWrite) error
	Close() error
}

type goRedis struct {
	c *redis.Client
}

func (g *goRedis) Ping(ctx context.Context) error {
	return g.c.Ping(ctx).Err()
}

func (g *goRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.c.HGetAll(ctx, key).Result()
}

func (g *goRedis) SMembers(ctx context.Context, key string) ([]string, error) {
	return g.c.SMembers(ctx, key).Result()
}

func (g *goRedis) Write(ctx context.Context, w *redisWrite) error {
	values := make(map[string]interface{}, len(w.fields))
	for k, v := range w.fields {
		values[k] = v
	}

	_, err := g.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, w.key, values)
		if w.member == "" {
			return nil
		}
		for _, set := range w.remove {
			pipe.SRem(ctx, set, w.member)
		}
		for _, set := range w.add {
			pipe.SAdd(ctx, set, w.member)
		}
		return nil
	})
	return err
}

func (g *goRedis) Close() error {
	return g.c.Close()
}

// RedisStore keeps the records in the shared redis layout:
// a hash per address plus the all/uncontacted/contacted/successful/geolocated sets
type RedisStore struct {
	client redisClient
}

func OpenRedis(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis address")
	}

	client := &goRedis{redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s failed: %w", addr, err)
	}
	return newRedisStore(client), nil
}

func newRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) SaveRecord(rec *peer.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	member := rec.Address.String()
	key := getRedisPeerKey(member)

	old, err := r.getRecord(ctx, key)
	if err != nil && err != ErrNotFound {
		return err
	}
	rec = merge(old, rec)

	w := &redisWrite{
		key:    key,
		fields: encodeRecord(rec),
		member: member,
		add:    []string{redisAllPeers},
	}
	if rec.Contacted {
		w.add = append(w.add, redisContacted)
		w.remove = append(w.remove, redisUncontacted)
	} else {
		w.add = append(w.add, redisUncontacted)
		w.remove = append(w.remove, redisContacted)
	}
	if rec.HandshakeSucceeded {
		w.add = append(w.add, redisSuccessful)
	} else {
		w.remove = append(w.remove, redisSuccessful)
	}
	if rec.Location != nil {
		w.add = append(w.add, redisGeolocated)
	}

	if err := r.client.Write(ctx, w); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

func (r *RedisStore) GetRecord(addr peer.Address) (*peer.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.getRecord(ctx, getRedisPeerKey(addr.String()))
}

func (r *RedisStore) getRecord(ctx context.Context, key string) (*peer.Record, error) {
	fields, err := r.client.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(fields)
}

// Records returns all records ordered by address
func (r *RedisStore) Records() ([]*peer.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, redisAllPeers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	result := make([]*peer.Record, 0, len(members))
	for _, m := range members {
		rec, err := r.getRecord(ctx, getRedisPeerKey(m))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	sortRecords(result)
	return result, nil
}

func (r *RedisStore) SaveSummary(s *crawler.Summary) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	w := &redisWrite{
		key: getRedisSessionKey(s.SessionID),
		fields: map[string]string{
			"id":                    s.SessionID,
			"network":               s.Network,
			"started_at":            formatTime(s.StartedAt),
			"ended_at":              formatTime(s.EndedAt),
			"total_discovered":      strconv.Itoa(s.Discovered),
			"total_contacted":       strconv.Itoa(s.Contacted),
			"successful_handshakes": strconv.Itoa(s.Successful),
			"failed_connections":    strconv.Itoa(s.Failed),
			"iterations_completed":  strconv.Itoa(s.Iterations),
			"duration_seconds":      strconv.FormatFloat(s.Elapsed.Seconds(), 'f', 3, 64),
			"stop_reason":           string(s.StopReason),
			"summary":               string(data),
		},
	}
	if err := r.client.Write(ctx, w); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

func (r *RedisStore) GetSummary(id string) (*crawler.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, getRedisSessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	data, ok := fields["summary"]
	if !ok {
		return nil, ErrNotFound
	}

	result := &crawler.Summary{}
	if err := json.Unmarshal([]byte(data), result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeRecord(rec *peer.Record) map[string]string {
	fields := map[string]string{
		"ip":                   rec.Address.IP.String(),
		"port":                 strconv.Itoa(int(rec.Address.Port)),
		"first_discovered":     formatTime(rec.FirstSeenAt),
		"last_seen":            formatTime(rec.LastSeenAt),
		"contacted":            formatBool(rec.Contacted),
		"successful_handshake": formatBool(rec.HandshakeSucceeded),
		"fail_reason":          rec.FailReason,
		"user_agent":           rec.UserAgent,
		"version":              strconv.Itoa(int(rec.ProtocolVersion)),
		"services":             strconv.FormatUint(rec.Services, 10),
		"height":               strconv.Itoa(int(rec.ReportedHeight)),
		"source":               rec.Source,
	}
	if loc := rec.Location; loc != nil {
		fields["country"] = loc.Country
		fields["country_code"] = loc.CountryCode
		fields["city"] = loc.City
		fields["latitude"] = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		fields["timezone"] = loc.Timezone
	}
	return fields
}

func decodeRecord(fields map[string]string) (*peer.Record, error) {
	addr, err := peer.ParseAddress(fields["ip"] + ":" + fields["port"])
	if err != nil {
		return nil, err
	}

	rec := &peer.Record{
		Address:            addr,
		Contacted:          fields["contacted"] == "1",
		HandshakeSucceeded: fields["successful_handshake"] == "1",
		FailReason:         fields["fail_reason"],
		UserAgent:          fields["user_agent"],
		Source:             fields["source"],
	}
	if rec.FirstSeenAt, err = parseTime(fields["first_discovered"]); err != nil {
		return nil, err
	}
	if rec.LastSeenAt, err = parseTime(fields["last_seen"]); err != nil {
		return nil, err
	}

	var version, height int64
	if version, err = parseInt(fields["version"], 32); err != nil {
		return nil, err
	}
	if height, err = parseInt(fields["height"], 32); err != nil {
		return nil, err
	}
	rec.ProtocolVersion = int32(version)
	rec.ReportedHeight = int32(height)
	if s := fields["services"]; s != "" {
		if rec.Services, err = strconv.ParseUint(s, 10, 64); err != nil {
			return nil, err
		}
	}

	if _, ok := fields["latitude"]; ok {
		loc := &peer.Location{
			Country:     fields["country"],
			CountryCode: fields["country_code"],
			City:        fields["city"],
			Timezone:    fields["timezone"],
		}
		if loc.Latitude, err = strconv.ParseFloat(fields["latitude"], 64); err != nil {
			return nil, err
		}
		if loc.Longitude, err = strconv.ParseFloat(fields["longitude"], 64); err != nil {
			return nil, err
		}
		rec.Location = loc
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseInt(s string, bits int) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, bits)
}
