package signaling

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
)

const (
	mockLessonID      = core.LessonID("lesson-6b2a")
	mockParticipantID = core.ParticipantID("0c4038d6-da68-11ec-9d64-0242ac120002")
)

type MockCallbacks struct {
	JoinFired         bool
	JoinedParticipant *core.Participant
	LeaveFired        bool
	PresenceFired     bool
	PresenceParams    rpc.PresenceParams
	HeartbeatFired    bool
	OfferFired        bool
	AnswerFired       bool
	ICECandidateFired bool
	ChatFired         bool
	ChatMessage       *core.ChatMessage
	StartStreamFired  bool
	EndStreamFired    bool
}

func (m *MockCallbacks) OnJoin(lessonID core.LessonID, p *core.Participant) error {
	m.JoinFired = true
	m.JoinedParticipant = p

	return nil
}

func (m *MockCallbacks) OnLeave(lessonID core.LessonID, id core.ParticipantID) error {
	m.LeaveFired = true

	return nil
}

func (m *MockCallbacks) OnPresence(lessonID core.LessonID, params rpc.PresenceParams) error {
	m.PresenceFired = true
	m.PresenceParams = params

	return nil
}

func (m *MockCallbacks) OnHeartbeat(lessonID core.LessonID, id core.ParticipantID) error {
	m.HeartbeatFired = true

	return nil
}

func (m *MockCallbacks) OnOffer(lessonID core.LessonID, params rpc.SDPParams) error {
	m.OfferFired = true

	return nil
}

func (m *MockCallbacks) OnAnswer(lessonID core.LessonID, params rpc.SDPParams) error {
	m.AnswerFired = true

	return nil
}

func (m *MockCallbacks) OnICECandidate(lessonID core.LessonID, params rpc.ICECandidateParams) error {
	m.ICECandidateFired = true

	return nil
}

func (m *MockCallbacks) OnChat(lessonID core.LessonID, id core.ParticipantID, msg *core.ChatMessage) error {
	m.ChatFired = true
	m.ChatMessage = msg

	return nil
}

func (m *MockCallbacks) OnStartStream(lessonID core.LessonID, id core.ParticipantID) error {
	m.StartStreamFired = true

	return nil
}

func (m *MockCallbacks) OnEndStream(lessonID core.LessonID, id core.ParticipantID) error {
	m.EndStreamFired = true

	return nil
}

func mockServerMessagePayload(method rpc.Method, params string) ([]byte, error) {
	raw := fmt.Sprintf(`{"jsonrpc":"2.0","method":"%s","params":%s}`, method, params)

	return json.Marshal(ServerMessage{
		LessonID:      mockLessonID,
		ParticipantID: mockParticipantID,
		Rpc:           json.RawMessage(raw),
	})
}

func newRouterWithCallbacks(t *testing.T, bus *MockBus) (*Router, *MockCallbacks) {
	s := NewMockSubscriber(bus)
	router, err := NewRouter(s)
	assert.Nil(t, err)

	callbacks := &MockCallbacks{}
	router.OnJoin(callbacks.OnJoin)
	router.OnLeave(callbacks.OnLeave)
	router.OnPresence(callbacks.OnPresence)
	router.OnHeartbeat(callbacks.OnHeartbeat)
	router.OnOffer(callbacks.OnOffer)
	router.OnAnswer(callbacks.OnAnswer)
	router.OnICECandidate(callbacks.OnICECandidate)
	router.OnChat(callbacks.OnChat)
	router.OnStartStream(callbacks.OnStartStream)
	router.OnEndStream(callbacks.OnEndStream)

	return router, callbacks
}

func TestNewRouter(t *testing.T) {
	mockBus := NewMockBus()
	defer mockBus.Close()

	s := NewMockSubscriber(mockBus)

	_, err := NewRouter(s)
	assert.Nil(t, err)

	assert.Equal(t, true, s.ServerSubscribed)
}

func TestParseServerMessage(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.HeartbeatMethod, "null")
	assert.Nil(t, err)

	lessonID, participantID, r, err := parseServerMessage(string(payload))
	assert.Nil(t, err)

	assert.Equal(t, mockLessonID, lessonID)
	assert.Equal(t, mockParticipantID, participantID)
	assert.Equal(t, rpc.HeartbeatMethod, r.GetMethod())
}

func TestParseServerMessageWithoutIdentity(t *testing.T) {
	payload, err := json.Marshal(ServerMessage{
		Rpc: json.RawMessage(`{"jsonrpc":"2.0","method":"heartbeat","params":null}`),
	})
	assert.Nil(t, err)

	_, _, _, err = parseServerMessage(string(payload))
	assert.Equal(t, rpc.ErrMalformedRpc, err)
}

func TestOnJoin(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.JoinMethod, `{"id":"spoofed","name":"Alice","is_instructor":true}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.JoinFired)
	assert.Equal(t, "Alice", callbacks.JoinedParticipant.Name)
	// the bridge identity always wins over the client-supplied id
	assert.Equal(t, mockParticipantID, callbacks.JoinedParticipant.ID)
}

func TestOnLeave(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.LeaveMethod, `{"participant_id":"0c4038d6-da68-11ec-9d64-0242ac120002"}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.LeaveFired)
}

func TestOnPresence(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.PresenceMethod, `{"audio_enabled":false,"screen_sharing":true}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.PresenceFired)
	assert.Equal(t, mockParticipantID, callbacks.PresenceParams.ParticipantID)
	// partial update: video flag was not announced
	assert.Nil(t, callbacks.PresenceParams.VideoEnabled)
	assert.Equal(t, false, *callbacks.PresenceParams.AudioEnabled)
	assert.Equal(t, true, *callbacks.PresenceParams.ScreenSharing)
}

func TestOnOffer(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.SDPOfferMethod, `{"type":"offer","sdp":"v=0","to":"peer-2"}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.OfferFired)
	assert.Equal(t, false, callbacks.AnswerFired)
}

func TestOnICECandidate(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.ICECandidateMethod, `{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","to":"peer-2"}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.ICECandidateFired)
}

func TestOnChat(t *testing.T) {
	payload, err := mockServerMessagePayload(rpc.ChatMethod, `{"id":"m1","participant_id":"p1","participant_name":"Alice","message":"hi"}`)
	assert.Nil(t, err)

	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(payload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.ChatFired)
	assert.Equal(t, "hi", callbacks.ChatMessage.Message)
}

func TestOnStreamLifecycle(t *testing.T) {
	mockBus := NewMockBus()
	router, callbacks := newRouterWithCallbacks(t, mockBus)

	startPayload, err := mockServerMessagePayload(rpc.StartStreamMethod, "null")
	assert.Nil(t, err)
	endPayload, err := mockServerMessagePayload(rpc.EndStreamMethod, "null")
	assert.Nil(t, err)

	<-router.Start()
	mockBus.Messages <- &redis.Message{Payload: string(startPayload)}
	mockBus.Messages <- &redis.Message{Payload: string(endPayload)}
	<-router.Stop()

	assert.Equal(t, true, callbacks.StartStreamFired)
	assert.Equal(t, true, callbacks.EndStreamFired)
}
