package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	markerRecordVersionV1 = 1

	// minMarkerTTL keeps a marker alive briefly even when the token is at the
	// edge of its validity window.
	minMarkerTTL = time.Second
)

var (
	ErrMarkerNotFound         = errors.New("used-token marker not found")
	ErrMarkerRedisUnavailable = errors.New("used-token redis unavailable")
	ErrMarkerInvalidInput     = errors.New("used-token marker requires token id and nonce")
)

// UsedTokenMarker records the consumption of one (token id, nonce) pair.
type UsedTokenMarker struct {
	Nonce     string
	UsedAt    int64
	ExpiresAt int64
}

// RedisUsedTokenStore marks tokens consumed with a single SET NX. The key is
// the token id alone; the nonce is kept in the record. The marker expires
// together with the token it shadows.
type RedisUsedTokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisUsedTokenStore(redisClient redis.UniversalClient, prefix string) *RedisUsedTokenStore {
	if prefix == "" {
		prefix = "mlu"
	}
	return &RedisUsedTokenStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisUsedTokenStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// MarkUsed returns true only for the first caller presenting tokenID.
func (s *RedisUsedTokenStore) MarkUsed(ctx context.Context, tokenID, nonce string, expiresAt time.Time) (bool, error) {
	if tokenID == "" || nonce == "" {
		return false, ErrMarkerInvalidInput
	}
	if s == nil || s.redis == nil {
		return false, fmt.Errorf("%w: client not configured", ErrMarkerRedisUnavailable)
	}

	now := s.now()
	encoded, err := encodeUsedTokenMarker(&UsedTokenMarker{
		Nonce:     nonce,
		UsedAt:    now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return false, err
	}

	ttl := expiresAt.Sub(now)
	if ttl < minMarkerTTL {
		ttl = minMarkerTTL
	}

	first, err := s.redis.SetNX(ctx, s.key(tokenID), encoded, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMarkerRedisUnavailable, err)
	}
	return first, nil
}

// Get returns the marker recorded for tokenID.
func (s *RedisUsedTokenStore) Get(ctx context.Context, tokenID string) (*UsedTokenMarker, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMarkerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMarkerRedisUnavailable, err)
	}
	return decodeUsedTokenMarker(data)
}

func encodeUsedTokenMarker(marker *UsedTokenMarker) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(markerRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, marker.UsedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, marker.ExpiresAt); err != nil {
		return nil, err
	}
	if len(marker.Nonce) > 255 {
		return nil, errors.New("marker nonce too long")
	}
	buf.WriteByte(byte(len(marker.Nonce)))
	buf.WriteString(marker.Nonce)

	return buf.Bytes(), nil
}

func decodeUsedTokenMarker(data []byte) (*UsedTokenMarker, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != markerRecordVersionV1 {
		return nil, errors.New("invalid marker record version")
	}

	marker := &UsedTokenMarker{}
	if err := binary.Read(reader, binary.BigEndian, &marker.UsedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &marker.ExpiresAt); err != nil {
		return nil, err
	}

	nonceLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(reader, nonce); err != nil {
		return nil, err
	}
	marker.Nonce = string(nonce)

	return marker, nil
}
