package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplacementsKeepsOrder(t *testing.T) {
	got, err := ParseReplacements([]byte(`{"zeta":"1","Acme Corp":"REDACTED","":"ignored","alpha":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, Replacements{
		{Old: "zeta", New: "1"},
		{Old: "Acme Corp", New: "REDACTED"},
		{Old: "", New: "ignored"},
		{Old: "alpha", New: "2"},
	}, got)
}

func TestParseReplacementsDuplicateKey(t *testing.T) {
	got, err := ParseReplacements([]byte(`{"a":"1","b":"2","a":"3"}`))
	require.NoError(t, err)
	assert.Equal(t, Replacements{{Old: "a", New: "3"}, {Old: "b", New: "2"}}, got)
}

func TestParseReplacementsEmptyObject(t *testing.T) {
	got, err := ParseReplacements([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseReplacementsRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"array":         `["a","b"]`,
		"string":        `"a"`,
		"number value":  `{"a":1}`,
		"null value":    `{"a":null}`,
		"nested object": `{"a":{"b":"c"}}`,
		"malformed":     `{"a":`,
		"trailing":      `{"a":"b"} {}`,
		"empty":         ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReplacements([]byte(raw))
			assert.ErrorIs(t, err, ErrReplacementsNotObject)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusQueued, StatusProcessing))
	assert.True(t, CanTransition(StatusProcessing, StatusDone))
	assert.True(t, CanTransition(StatusProcessing, StatusFailed))
	assert.True(t, CanTransition(StatusQueued, StatusFailed))

	assert.False(t, CanTransition(StatusQueued, StatusDone))
	assert.False(t, CanTransition(StatusProcessing, StatusProcessing))
	assert.False(t, CanTransition(StatusDone, StatusProcessing))
	assert.False(t, CanTransition(StatusFailed, StatusDone))
	assert.False(t, CanTransition(StatusDone, StatusQueued))
}

func TestCloneIsDeep(t *testing.T) {
	note := "fine"
	rating := 4
	orig := &Submission{
		ID:           "abc",
		Replacements: Replacements{{Old: "a", New: "b"}},
		Rating:       &rating,
		RatingNote:   &note,
	}
	cp := orig.Clone()
	*cp.Rating = 1
	*cp.RatingNote = "changed"
	cp.Replacements[0].New = "z"

	assert.Equal(t, 4, *orig.Rating)
	assert.Equal(t, "fine", *orig.RatingNote)
	assert.Equal(t, "b", orig.Replacements[0].New)
}

func TestObjectJSONKeepsOrder(t *testing.T) {
	pairs := Replacements{{Old: "Zed", New: "A"}, {Old: "Acme \"Corp\"", New: "B"}, {Old: "", New: ""}}
	raw, err := pairs.ObjectJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Zed":"A","Acme \"Corp\"":"B","":""}`, string(raw))

	back, err := ParseReplacements(raw)
	require.NoError(t, err)
	assert.Equal(t, pairs, back)
}
