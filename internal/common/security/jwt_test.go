package security

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"todo_service/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testSecret = []byte("test-secret-key-at-least-32-bytes")

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	codec := NewTokenCodec(testSecret, WithClock(clock.Now))

	token, err := codec.Issue("alice@x", time.Hour)
	require.NoError(t, err)

	subject, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x", subject)

	clock.Advance(59 * time.Minute)
	subject, err = codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x", subject)
}

func TestTokenCodec_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	codec := NewTokenCodec(testSecret, WithClock(clock.Now))

	token, err := codec.Issue("alice@x", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)
	_, err = codec.Verify(token)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestTokenCodec_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	codec := NewTokenCodec(testSecret, WithClock(clock.Now))

	token, err := codec.Issue("alice@x", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute - time.Millisecond)
	subject, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x", subject)

	clock.Advance(time.Millisecond)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestTokenCodec_TamperedAndForeign(t *testing.T) {
	codec := NewTokenCodec(testSecret)
	token, err := codec.Issue("alice@x", time.Hour)
	require.NoError(t, err)

	t.Run("tampered signature", func(t *testing.T) {
		i := strings.LastIndex(token, ".") + 5
		replacement := "A"
		if token[i] == 'A' {
			replacement = "B"
		}
		_, err := codec.Verify(token[:i] + replacement + token[i+1:])
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewTokenCodec([]byte("another-secret-key-at-least-32-bytes"))
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, raw := range []string{"", "not-a-token", strings.Repeat("a.", 2) + "a"} {
			_, err := codec.Verify(raw)
			assert.ErrorIs(t, err, common.ErrUnauthorized, raw)
		}
	})
}

func TestTokenCodec_MissingSubject(t *testing.T) {
	claims := jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewTokenCodec(testSecret).Verify(tokenString)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestTokenCodec_AcceptsForeignlyMintedHS256(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "bob@x",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	subject, err := NewTokenCodec(testSecret).Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "bob@x", subject)
}

func TestTokenCodec_ConcurrentVerify(t *testing.T) {
	codec := NewTokenCodec(testSecret)
	token, err := codec.Issue("carol@x", time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject, err := codec.Verify(token)
			assert.NoError(t, err)
			assert.Equal(t, "carol@x", subject)
		}()
	}
	wg.Wait()
}

func TestBcryptHasher(t *testing.T) {
	hasher := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, hasher.Verify("correct horse", hash))
	assert.False(t, hasher.Verify("battery staple", hash))
	assert.False(t, hasher.Verify("correct horse", "not-a-hash"))
}
