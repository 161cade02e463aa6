package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport-level Redis failure. Callers must
// fail closed on it.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordNotFound is returned when no record matches the presented token.
var ErrRecordNotFound = errors.New("refresh record not found")

// ErrRecordExpired is returned when the matching record's lifetime has passed.
var ErrRecordExpired = errors.New("refresh record expired")

// ErrRecordRevoked signals that an already-retired token was presented:
// proof of replay or a lost rotation race. The partial record returned
// alongside it carries the family ID so callers can cascade revocation.
var ErrRecordRevoked = errors.New("refresh record already revoked")

// ErrRecordCorrupt is returned when a stored record is missing fields.
var ErrRecordCorrupt = errors.New("refresh record corrupt")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

const rotateScript = `
local old_key = KEYS[1]
local new_key = KEYS[2]

local provided_hash = ARGV[1]
local new_token_id = ARGV[2]
local next_hash = ARGV[3]
local now = tonumber(ARGV[4])
local rotation_ttl = tonumber(ARGV[5])
local fam_prefix = ARGV[6]

if redis.call("EXISTS", old_key) == 0 then
  return {0}
end

local rec = redis.call("HMGET", old_key,
  "revoked", "expires_at", "token_hash", "family_id",
  "seq", "subject", "role", "family_deadline",
  "replaced_by", "retired_at")

local revoked = rec[1]
local expires_at = tonumber(rec[2])
local token_hash = rec[3]
local family_id = rec[4]
local seq = tonumber(rec[5])
local subject = rec[6]
local role = rec[7]
local family_deadline = tonumber(rec[8])

if not expires_at or not seq or not family_deadline or not family_id then
  return {4}
end

if revoked == "1" then
  return {2, family_id, rec[9] or "", rec[10] or ""}
end

if expires_at <= now then
  return {1}
end

if token_hash ~= provided_hash then
  return {0}
end

local fam_key = fam_prefix .. family_id

local next_seq = seq + 1
local next_expires = now + rotation_ttl
if next_expires > family_deadline then
  next_expires = family_deadline
end

redis.call("HSET", old_key, "revoked", "1", "replaced_by", new_token_id, "retired_at", tostring(now))
redis.call("HSET", new_key,
  "family_id", family_id,
  "seq", tostring(next_seq),
  "token_hash", next_hash,
  "subject", subject,
  "role", role,
  "issued_at", tostring(now),
  "expires_at", tostring(next_expires),
  "family_deadline", tostring(family_deadline),
  "revoked", "0",
  "replaced_by", "")

redis.call("SADD", fam_key, new_token_id)

local remaining_ms = (family_deadline - now) * 1000
if remaining_ms > 0 then
  redis.call("PEXPIRE", new_key, remaining_ms)
  redis.call("PEXPIRE", fam_key, remaining_ms)
end

return {3, family_id, tostring(next_seq), subject, role, tostring(next_expires)}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeFamilyScript = `
local fam_key = KEYS[1]
local rec_prefix = ARGV[1]

local ids = redis.call("SMEMBERS", fam_key)
local touched = 0
for _, id in ipairs(ids) do
  local key = rec_prefix .. id
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "revoked", "1")
    touched = touched + 1
  end
end
return touched
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

// Store is the Redis-backed refresh-record store. It owns record
// persistence, the per-family index, atomic rotation, and family-wide
// revocation. All mutations of a record go through Lua scripts so that
// concurrent refreshes cannot interleave between lookup and commit.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a refresh [Store] backed by the given Redis client.
// prefix namespaces all keys.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) recordKey(tokenID string) string {
	return s.prefix + ":rec:" + tokenID
}

func (s *Store) recordKeyPrefix() string {
	return s.prefix + ":rec:"
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

// Create persists the first record of a new family (sequence 0) and seeds
// the family index. The record and index both expire at the family deadline.
//
//	Performance: 4 Redis commands in one MULTI/EXEC.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	remaining := time.Until(time.Unix(rec.FamilyDeadline, 0))
	if remaining <= 0 {
		return ErrRecordExpired
	}

	recKey := s.recordKey(rec.TokenID)
	famKey := s.familyKey(rec.FamilyID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recKey,
			"family_id", rec.FamilyID,
			"seq", strconv.FormatUint(rec.Sequence, 10),
			"token_hash", string(rec.TokenHash[:]),
			"subject", rec.Subject,
			"role", rec.Role,
			"issued_at", strconv.FormatInt(rec.IssuedAt, 10),
			"expires_at", strconv.FormatInt(rec.ExpiresAt, 10),
			"family_deadline", strconv.FormatInt(rec.FamilyDeadline, 10),
			"revoked", "0",
			"replaced_by", "",
		)
		pipe.PExpire(ctx, recKey, remaining)
		pipe.SAdd(ctx, famKey, rec.TokenID)
		pipe.PExpire(ctx, famKey, remaining)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Rotate atomically retires the record identified by tokenID and writes its
// successor. It succeeds only if the record exists, is unrevoked, is
// unexpired, and its stored hash matches providedHash, all checked inside
// one Lua script.
//
// On success the returned record describes the successor. On
// [ErrRecordRevoked] the returned record is partial (family ID, successor
// ID, and retirement time) so the caller can revoke the family and classify
// the presentation. All other failures return a nil record.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: the CAS prevents two concurrent refreshes from both succeeding.
func (s *Store) Rotate(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	newTokenID string,
	newHash [32]byte,
	rotationTTL time.Duration,
) (*Record, error) {
	now := time.Now()

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(tokenID), s.recordKey(newTokenID)},
		providedHash[:],
		newTokenID,
		newHash[:],
		now.Unix(),
		int64(rotationTTL/time.Second),
		s.prefix+":fam:",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrRecordNotFound
	case rotateStatusExpired:
		return nil, ErrRecordExpired
	case rotateStatusRevoked:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing family in revoked response", ErrRedisUnavailable)
		}
		revokedRec := &Record{FamilyID: scriptString(parts[1]), Revoked: true}
		if len(parts) >= 3 {
			revokedRec.ReplacedBy = scriptString(parts[2])
		}
		if len(parts) >= 4 {
			if at, perr := strconv.ParseInt(scriptString(parts[3]), 10, 64); perr == nil {
				revokedRec.RetiredAt = at
			}
		}
		return revokedRec, ErrRecordRevoked
	case rotateStatusRotated:
		if len(parts) < 6 {
			return nil, fmt.Errorf("%w: missing rotate payload", ErrRedisUnavailable)
		}
		seq, perr := strconv.ParseUint(scriptString(parts[2]), 10, 64)
		if perr != nil {
			return nil, errors.Join(ErrRedisUnavailable, ErrRecordCorrupt)
		}
		expiresAt, perr := strconv.ParseInt(scriptString(parts[5]), 10, 64)
		if perr != nil {
			return nil, errors.Join(ErrRedisUnavailable, ErrRecordCorrupt)
		}
		return &Record{
			TokenID:   newTokenID,
			FamilyID:  scriptString(parts[1]),
			Sequence:  seq,
			TokenHash: newHash,
			Subject:   scriptString(parts[3]),
			Role:      scriptString(parts[4]),
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt,
		}, nil
	case rotateStatusCorrupt:
		return nil, errors.Join(ErrRedisUnavailable, ErrRecordCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// RevokeFamily marks every record in the family as revoked, leaving
// replaced_by markers untouched for audit trails. Idempotent: revoking an
// already-revoked family is a no-op. Returns the number of records touched.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	result, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID)},
		s.recordKeyPrefix(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	touched, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke script response", ErrRedisUnavailable)
	}
	return int(touched), nil
}

// Get fetches a record without mutating any state. Used by tests, admin
// introspection, and audit tooling; never on the rotation hot path.
func (s *Store) Get(ctx context.Context, tokenID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	return parseRecord(tokenID, fields)
}

// FamilyTokenIDs returns the token IDs indexed under a family, oldest first
// not guaranteed (set semantics). Missing families return an empty slice.
func (s *Store) FamilyTokenIDs(ctx context.Context, familyID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ListFamilies scans the family index keyspace and returns every live
// family ID. Families whose deadline has passed drop out via key expiry.
// SCAN-based, so concurrent logins may or may not appear in the result.
func (s *Store) ListFamilies(ctx context.Context) ([]string, error) {
	keyPrefix := s.prefix + ":fam:"

	ids := []string{}
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 128).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// FamilyRecords loads every surviving record of a family.
func (s *Store) FamilyRecords(ctx context.Context, familyID string) ([]*Record, error) {
	ids, err := s.FamilyTokenIDs(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}
		rec, perr := parseRecord(ids[i], fields)
		if perr != nil {
			return nil, perr
		}
		records = append(records, rec)
	}

	return records, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func parseRecord(tokenID string, fields map[string]string) (*Record, error) {
	seq, err := strconv.ParseUint(fields["seq"], 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	deadline, err := strconv.ParseInt(fields["family_deadline"], 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	if fields["family_id"] == "" {
		return nil, ErrRecordCorrupt
	}

	rec := &Record{
		TokenID:        tokenID,
		FamilyID:       fields["family_id"],
		Sequence:       seq,
		Subject:        fields["subject"],
		Role:           fields["role"],
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		FamilyDeadline: deadline,
		Revoked:        fields["revoked"] == "1",
		ReplacedBy:     fields["replaced_by"],
	}
	if at, aerr := strconv.ParseInt(fields["retired_at"], 10, 64); aerr == nil {
		rec.RetiredAt = at
	}
	copy(rec.TokenHash[:], fields["token_hash"])

	return rec, nil
}

func scriptString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}
