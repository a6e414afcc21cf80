package frame

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	f, err := Decode([]byte(`["EVENT","sub1",{"id":"abc","pubkey":"p","created_at":1672068534,"kind":1,"tags":[["e","x"]],"content":"hello","sig":"s"}]`))
	require.NoError(t, err)
	ev, ok := f.(*Event)
	require.True(t, ok, "got %T", f)
	assert.Equal(t, "sub1", ev.SubscriptionID)
	require.NotNil(t, ev.Nostr)
	assert.Nil(t, ev.Primal)
	assert.Equal(t, "hello", ev.Nostr.Content)
	assert.Equal(t, 1, ev.Nostr.Kind)
	assert.Equal(t, nostr.Timestamp(1672068534), ev.Nostr.CreatedAt)
	assert.Equal(t, "sub1", CorrelationID(f))
	assert.False(t, IsTerminal(f))
}

func TestDecodePrimalEvent(t *testing.T) {
	f, err := Decode([]byte(`["EVENT","c",{"kind":10000105,"content":"{\"followers_count\":3}"}]`))
	require.NoError(t, err)
	ev := f.(*Event)
	assert.Nil(t, ev.Nostr)
	require.NotNil(t, ev.Primal)
	assert.Equal(t, 10000105, ev.Primal.Kind)
}

func TestDecodeEventsBatch(t *testing.T) {
	f, err := Decode([]byte(`["EVENTS","c",[{"kind":1,"content":"a"},{"kind":10000100,"content":"b"},{"kind":0,"content":"c"}]]`))
	require.NoError(t, err)
	evs := f.(*Events)
	assert.Equal(t, "c", CorrelationID(evs))
	assert.Len(t, evs.Nostr, 2)
	assert.Len(t, evs.Primal, 1)
}

func TestDecodeEventsBatchSkipsBadItems(t *testing.T) {
	f, err := Decode([]byte(`["EVENTS","s1",[{"kind":1,"content":"good"},{"kind":"oops"}]]`))
	require.NoError(t, err)
	evs := f.(*Events)
	require.Len(t, evs.Nostr, 1)
	assert.Equal(t, "good", evs.Nostr[0].Content)
	assert.Empty(t, evs.Primal)
	// the container itself must still be an array
	_, err = Decode([]byte(`["EVENTS","s1",{"kind":1}]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeControlFrames(t *testing.T) {
	f, err := Decode([]byte(`["EOSE","q"]`))
	require.NoError(t, err)
	assert.Equal(t, &EOSE{SubscriptionID: "q"}, f)
	assert.True(t, IsTerminal(f))

	f, err = Decode([]byte(`["OK","eid",false,"blocked: spam"]`))
	require.NoError(t, err)
	assert.Equal(t, &OK{EventID: "eid", Success: false, Message: "blocked: spam"}, f)
	assert.Empty(t, CorrelationID(f))

	f, err = Decode([]byte(`["OK","eid",true]`))
	require.NoError(t, err)
	assert.True(t, f.(*OK).Success)

	f, err = Decode([]byte(`["NOTICE","rate limited"]`))
	require.NoError(t, err)
	assert.Equal(t, &Notice{Message: "rate limited"}, f)
	assert.True(t, IsTerminal(f))

	f, err = Decode([]byte(`["CLOSED","q","auth-required: no"]`))
	require.NoError(t, err)
	assert.Equal(t, &Closed{SubscriptionID: "q", Message: "auth-required: no"}, f)

	f, err = Decode([]byte(`["AUTH","challenge"]`))
	require.NoError(t, err)
	assert.Equal(t, &Auth{Challenge: "challenge"}, f)

	f, err = Decode([]byte(`["COUNT","q",{"count":42}]`))
	require.NoError(t, err)
	assert.Equal(t, &Count{SubscriptionID: "q", Count: 42}, f)
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{
		``, `{}`, `[]`, `[1,2]`, `not json`,
		`["EVENT","c"]`, `["EVENT",1,{}]`, `["OK","id","yes"]`, `["EOSE"]`,
	} {
		_, err := Decode([]byte(in))
		assert.True(t, errors.Is(err, ErrMalformed), "%q: %v", in, err)
	}
	_, err := Decode([]byte(`["PING","x"]`))
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestEncode(t *testing.T) {
	b, err := Req("c1", map[string]any{"cache": []any{"user_profile", map[string]string{"pubkey": "abc"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `["REQ","c1",{"cache":["user_profile",{"pubkey":"abc"}]}]`, string(b))

	b, err = Req("c2", json.RawMessage(`{"kinds":[1],"limit":2}`))
	require.NoError(t, err)
	assert.JSONEq(t, `["REQ","c2",{"kinds":[1],"limit":2}]`, string(b))

	b, err = Close("c1")
	require.NoError(t, err)
	assert.JSONEq(t, `["CLOSE","c1"]`, string(b))

	_, err = Req("", nil)
	assert.ErrorIs(t, err, ErrEmptyID)

	ev := &nostr.Event{ID: "eid", Kind: 1, Content: "hi", Tags: nostr.Tags{}}
	b, err = Publish(ev)
	require.NoError(t, err)
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw, 2)
	assert.JSONEq(t, `"EVENT"`, string(raw[0]))

	_, err = Publish(&nostr.Event{})
	assert.Error(t, err)
}
