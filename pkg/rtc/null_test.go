package rtc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullMediaDevices(t *testing.T) {
	devices := NewNullMediaDevices()
	ctx := context.Background()

	stream, err := devices.GetUserMedia(ctx, MediaConstraints{Audio: true, Video: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []MediaKind{MediaKindAudio, MediaKindVideo}, stream.Kinds())

	audioOnly, err := devices.GetUserMedia(ctx, MediaConstraints{Audio: true})
	require.NoError(t, err)
	assert.Equal(t, []MediaKind{MediaKindAudio}, audioOnly.Kinds())

	_, err = devices.GetUserMedia(ctx, MediaConstraints{})
	assert.Error(t, err)
}

func TestNullMediaDevicesFailNext(t *testing.T) {
	devices := NewNullMediaDevices()
	devices.FailNext(fmt.Errorf("permission denied"))

	_, err := devices.GetUserMedia(context.Background(), MediaConstraints{Audio: true})
	require.Error(t, err)

	// failure is one-shot
	_, err = devices.GetUserMedia(context.Background(), MediaConstraints{Audio: true})
	assert.NoError(t, err)
}

func TestNullMediaStreamTrackToggle(t *testing.T) {
	stream := NewNullMediaStream(MediaKindAudio, MediaKindVideo)

	assert.True(t, stream.TrackEnabled(MediaKindAudio))
	assert.True(t, stream.SetTrackEnabled(MediaKindAudio, false))
	assert.False(t, stream.TrackEnabled(MediaKindAudio))
	assert.True(t, stream.TrackEnabled(MediaKindVideo))

	audioOnly := NewNullMediaStream(MediaKindAudio)
	assert.False(t, audioOnly.SetTrackEnabled(MediaKindVideo, false))
}

func TestNullPeerConnectionCandidateOrdering(t *testing.T) {
	pc := NewNullPeerConnection()

	err := pc.AddICECandidate(ICECandidate{Candidate: "candidate:1"})
	assert.Error(t, err, "candidates must be rejected before the remote description")

	require.NoError(t, pc.SetRemoteDescription(SessionDescription{Type: "offer", SDP: "v=0"}))
	require.True(t, pc.HasRemoteDescription())
	require.NoError(t, pc.AddICECandidate(ICECandidate{Candidate: "candidate:1"}))
	assert.Len(t, pc.Candidates(), 1)
}

func TestNullPeerConnectionAnswerRequiresRemote(t *testing.T) {
	pc := NewNullPeerConnection()
	ctx := context.Background()

	_, err := pc.CreateAnswer(ctx)
	assert.Error(t, err)

	require.NoError(t, pc.SetRemoteDescription(SessionDescription{Type: "offer", SDP: "v=0"}))
	answer, err := pc.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Type)
}

func TestNullPeerConnectionStateCallback(t *testing.T) {
	pc := NewNullPeerConnection()

	var states []ConnectionState
	pc.OnConnectionStateChange(func(s ConnectionState) {
		states = append(states, s)
	})

	pc.SetConnectionState(ConnectionStateConnecting)
	pc.SetConnectionState(ConnectionStateConnected)

	assert.Equal(t, []ConnectionState{ConnectionStateConnecting, ConnectionStateConnected}, states)
	assert.Equal(t, ConnectionStateConnected, pc.ConnectionState())
}

func TestConnectionStateTerminal(t *testing.T) {
	assert.True(t, ConnectionStateFailed.Terminal())
	assert.True(t, ConnectionStateDisconnected.Terminal())
	assert.True(t, ConnectionStateClosed.Terminal())
	assert.False(t, ConnectionStateConnected.Terminal())
	assert.False(t, ConnectionStateNew.Terminal())
}

func TestNullFactory(t *testing.T) {
	factory := NewNullFactory()

	pc, err := factory.NewPeerConnection(DefaultConfiguration())
	require.NoError(t, err)
	assert.Same(t, pc, PeerConnection(factory.Last()))
}
