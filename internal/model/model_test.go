package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanOpine(t *testing.T) {
	m := &Movie{ID: 1, UserID: 7}

	assert.False(t, CanOpine(7, m), "owner")
	assert.True(t, CanOpine(8, m))
	assert.False(t, CanOpine(8, nil))
}

func TestParseOpinion(t *testing.T) {
	for _, s := range []string{"", "L", "H"} {
		o, err := ParseOpinion(s)
		require.NoError(t, err)
		assert.Equal(t, Opinion(s), o)
	}

	_, err := ParseOpinion("X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"X" is not a valid choice`)

	_, err = ParseOpinion("l")
	assert.Error(t, err, "values are case sensitive")
}

func TestOpinionJSON(t *testing.T) {
	t.Run("marshal", func(t *testing.T) {
		b, err := json.Marshal(struct {
			A Opinion `json:"a"`
			B Opinion `json:"b"`
		}{A: OpinionLike})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":"L","b":null}`, string(b))
	})

	t.Run("unmarshal", func(t *testing.T) {
		var v struct {
			Opinion Opinion `json:"opinion"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"opinion":"H"}`), &v))
		assert.Equal(t, OpinionHate, v.Opinion)

		v.Opinion = OpinionLike
		require.NoError(t, json.Unmarshal([]byte(`{"opinion":null}`), &v))
		assert.Equal(t, OpinionNone, v.Opinion)

		assert.Error(t, json.Unmarshal([]byte(`{"opinion":"maybe"}`), &v))
		assert.Error(t, json.Unmarshal([]byte(`{"opinion":1}`), &v))
	})
}

func TestTally(t *testing.T) {
	likes, hates := Tally([]Opinion{OpinionLike, OpinionNone, OpinionHate, OpinionLike})
	assert.Equal(t, 2, likes)
	assert.Equal(t, 1, hates)

	likes, hates = Tally(nil)
	assert.Zero(t, likes)
	assert.Zero(t, hates)
}

func TestUserSummary(t *testing.T) {
	u := User{ID: 3, Username: "ada", FirstName: "Ada", LastName: "Lovelace", PasswordHash: "x"}
	b, err := json.Marshal(u.Summary())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"first_name":"Ada","last_name":"Lovelace","username":"ada"}`, string(b))
}
