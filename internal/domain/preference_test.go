package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/GameFinder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreference(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.Preference{
		"Unset":     domain.Unset,
		"Undefined": domain.Unset,
		"Dislike":   domain.Dislike,
		"Neutral":   domain.Neutral,
		"Optional":  domain.Neutral,
		"Like":      domain.Like,
	}
	for in, want := range cases {
		got, err := domain.ParsePreference(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	t.Run("it should reject unknown and differently cased names", func(t *testing.T) {
		for _, in := range []string{"", "like", "Love", "3"} {
			_, err := domain.ParsePreference(in)
			require.ErrorIs(t, err, domain.ErrUnknownPreference, in)
		}
	})
}

func TestPreference_JSON(t *testing.T) {
	t.Parallel()

	t.Run("it should encode canonical names inside maps", func(t *testing.T) {
		raw, err := json.Marshal(map[domain.ItemID]domain.Preference{440: domain.Like})
		require.NoError(t, err)
		assert.JSONEq(t, `{"440":"Like"}`, string(raw))
	})

	t.Run("it should refuse to encode an out of range value", func(t *testing.T) {
		_, err := json.Marshal(domain.Preference(9))
		require.Error(t, err)
	})

	t.Run("it should decode the old spelling", func(t *testing.T) {
		var p domain.Preference
		require.NoError(t, json.Unmarshal([]byte(`"Optional"`), &p))
		assert.Equal(t, domain.Neutral, p)
	})
}
