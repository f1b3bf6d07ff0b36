package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFramesSplitsBatchedDelivery(t *testing.T) {
	data := []byte(`{"type":"PLAYER_JOINED","payload":{"player":{"id":"p1","nickname":"ann"}}}` + "\n" +
		"\n" +
		`{"type":"TIMER_TICK","payload":{"roundNumber":1,"timeRemaining":120}}` + "\n")

	envs, skipped := DecodeFrames(data)
	require.Len(t, envs, 2)
	assert.Zero(t, skipped)
	assert.Equal(t, TypePlayerJoined, envs[0].Type)
	assert.Equal(t, TypeTimerTick, envs[1].Type)
}

func TestDecodeFramesSkipsPoisonRecords(t *testing.T) {
	data := []byte(`{"type":"PLAYER_JOINED","payload":{"player":{"id":"p1"}}}` + "\n" +
		`{not json at all` + "\n" +
		`{"payload":{"missing":"type tag"}}` + "\n" +
		`{"type":"PLAYER_LEFT","payload":{"playerId":"p1"}}`)

	envs, skipped := DecodeFrames(data)
	require.Len(t, envs, 2)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, TypePlayerJoined, envs[0].Type)
	assert.Equal(t, TypePlayerLeft, envs[1].Type)
}

func TestParsePayloadUnknownTagIsNonFatal(t *testing.T) {
	env := &Envelope{Type: "SOME_FUTURE_EVENT", Payload: []byte(`{"anything":1}`)}
	payload, err := ParsePayload(env)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestParsePayloadDecodesForTag(t *testing.T) {
	env, err := NewEnvelope(TypeVoteProgress, VoteProgressPayload{
		VoteID:     "v1",
		VotedCount: 3,
	})
	require.NoError(t, err)

	payload, err := ParsePayload(env)
	require.NoError(t, err)
	progress, ok := payload.(VoteProgressPayload)
	require.True(t, ok)
	assert.Equal(t, "v1", progress.VoteID)
	assert.Equal(t, 3, progress.VotedCount)
}

func TestParsePayloadRejectsMalformedPayload(t *testing.T) {
	env := &Envelope{Type: TypeTimerTick, Payload: []byte(`{"roundNumber":"not a number"}`)}
	_, err := ParsePayload(env)
	require.Error(t, err)
}
