package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommentEvent_UsesClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))))
	defer SetClock(nil)

	text := "x"
	ev := NewCommentEvent(Comment{ID: "abc", Text: &text})

	assert.Equal(t, "abc", ev.ID)
	assert.Equal(t, &text, ev.Text)
	assert.Nil(t, ev.Country)
	assert.Equal(t, time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC), ev.CreatedAt)
	assert.Equal(t, time.UTC, ev.CreatedAt.Location())
}

func TestComment_JSONRendersNulls(t *testing.T) {
	country := "US"
	b, err := json.Marshal(Comment{ID: "65f1c0ffee00000000000001", Country: &country})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"65f1c0ffee00000000000001","country":"US","region":null,"date":null,"text":null}`, string(b))
}
