package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyEncodeDecodeRoundTrip(t *testing.T) {
	profile := NameKey(KindProfile, "alice@example.com", nil)
	conf := IDKey(KindConference, 42, profile)
	sess := IDKey(KindSession, 7, conf)

	for _, key := range []*Key{profile, conf, sess} {
		decoded, err := DecodeKey(key.Encode())
		require.NoError(t, err)
		require.True(t, key.Equal(decoded), "round trip changed key %s", key)
	}
}

func TestKeyRoot(t *testing.T) {
	profile := NameKey(KindProfile, "alice", nil)
	conf := IDKey(KindConference, 1, profile)
	sess := IDKey(KindSession, 2, conf)

	require.True(t, profile.Equal(sess.Root()))
	require.True(t, profile.Equal(conf.Root()))
	require.True(t, profile.Equal(profile.Root()))
}

func TestKeyStringEscapesNames(t *testing.T) {
	// Names containing the path separators must survive a round trip.
	key := NameKey(KindProfile, "we/ird:user#1", nil)
	decoded, err := DecodeKey(key.Encode())
	require.NoError(t, err)
	require.Equal(t, "we/ird:user#1", decoded.Name)
}

func TestNumericAndNamedKeysNeverCollide(t *testing.T) {
	named := NameKey(KindConference, "42", nil)
	numeric := IDKey(KindConference, 42, nil)
	require.NotEqual(t, named.String(), numeric.String())
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not base64!!", "bm90IGEga2V5"} {
		_, err := DecodeKey(in)
		require.Error(t, err, "input %q", in)
		require.ErrorIs(t, err, ErrInvalidKey)
	}
}
