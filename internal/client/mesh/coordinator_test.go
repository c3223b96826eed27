package mesh

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeyev/voicemesh/internal/client/peer"
	"github.com/avdeyev/voicemesh/internal/config"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

type fakeTransport struct {
	mu        sync.Mutex
	remoteSet bool
	closed    bool
}

func (f *fakeTransport) CreateOffer() (string, error) { return "offer-sdp", nil }

func (f *fakeTransport) ApplyOffer(string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = true
	return "answer-sdp", nil
}

func (f *fakeTransport) ApplyAnswer(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = true
	return nil
}

func (f *fakeTransport) AddCandidate(protocol.Candidate) error { return nil }

func (f *fakeTransport) HasRemoteDescription() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteSet
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type sentMsg struct {
	kind   string
	target domain.ParticipantID
}

type fakeSignaler struct {
	mu        sync.Mutex
	sent      []sentMsg
	muteSends []bool
	admin     []string
}

func (s *fakeSignaler) SendOffer(target domain.ParticipantID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{kind: "offer", target: target})
	return nil
}

func (s *fakeSignaler) SendAnswer(target domain.ParticipantID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{kind: "answer", target: target})
	return nil
}

func (s *fakeSignaler) SendCandidate(target domain.ParticipantID, _ protocol.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{kind: "candidate", target: target})
	return nil
}

func (s *fakeSignaler) SendMuteState(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muteSends = append(s.muteSends, muted)
	return nil
}

func (s *fakeSignaler) SendAdminCommand(msgType string, _ domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = append(s.admin, msgType)
	return nil
}

func (s *fakeSignaler) offersTo() map[domain.ParticipantID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ParticipantID]int)
	for _, m := range s.sent {
		if m.kind == "offer" {
			out[m.target]++
		}
	}
	return out
}

func (s *fakeSignaler) answersTo() map[domain.ParticipantID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ParticipantID]int)
	for _, m := range s.sent {
		if m.kind == "answer" {
			out[m.target]++
		}
	}
	return out
}

func (s *fakeSignaler) muteStates() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.muteSends))
	copy(out, s.muteSends)
	return out
}

func (s *fakeSignaler) adminCmds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.admin))
	copy(out, s.admin)
	return out
}

func fakeFactoryFor(domain.ParticipantID) peer.TransportFactory {
	return func(peer.Hooks) (peer.Transport, error) {
		return &fakeTransport{}, nil
	}
}

func testTimings() config.Timings {
	return config.Timings{
		OfferStagger:    time.Millisecond,
		JoinOfferDelay:  time.Millisecond,
		RestartDelay:    10 * time.Millisecond,
		DisconnectGrace: 25 * time.Millisecond,
	}
}

func newTestCoordinator(localID domain.ParticipantID, role domain.Role) (*Coordinator, *fakeSignaler) {
	s := &fakeSignaler{}
	c := NewCoordinator(localID, role, s, fakeFactoryFor, testTimings())
	return c, s
}

func TestSnapshotInitiatesToEveryMember(t *testing.T) {
	c, s := newTestCoordinator("m", domain.RoleMember)
	defer c.Close()

	c.HandleExistingMembers([]protocol.MemberInfo{
		{ID: "a", Name: "alice"},
		{ID: "b", Name: "bob"},
		{ID: "z", Name: "zoe"},
	})

	// The new joiner offers to everyone already present, id order ignored.
	require.Eventually(t, func() bool {
		offers := s.offersTo()
		return offers["a"] == 1 && offers["b"] == 1 && offers["z"] == 1
	}, time.Second, time.Millisecond)
	assert.Len(t, c.Peers(), 3)
	assert.True(t, c.EngineFor("z").IsInitiator())
}

func TestSnapshotIsIdempotentPerPeer(t *testing.T) {
	c, s := newTestCoordinator("m", domain.RoleMember)
	defer c.Close()

	members := []protocol.MemberInfo{{ID: "a", Name: "alice"}}
	c.HandleExistingMembers(members)
	c.HandleExistingMembers(members)

	require.Eventually(t, func() bool {
		return s.offersTo()["a"] == 1
	}, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, s.offersTo()["a"])
	assert.Len(t, c.Peers(), 1)
}

func TestLaterJoinLesserIDInitiates(t *testing.T) {
	c, s := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()

	c.HandleMemberJoined(protocol.MemberInfo{ID: "b", Name: "bob"})
	require.Eventually(t, func() bool {
		return s.offersTo()["b"] == 1
	}, time.Second, time.Millisecond)
	assert.True(t, c.EngineFor("b").IsInitiator())
}

func TestLaterJoinGreaterIDWaits(t *testing.T) {
	c, s := newTestCoordinator("z", domain.RoleMember)
	defer c.Close()

	c.HandleMemberJoined(protocol.MemberInfo{ID: "b", Name: "bob"})
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, s.offersTo()["b"])
	require.NotNil(t, c.EngineFor("b"))
	assert.False(t, c.EngineFor("b").IsInitiator())
}

func TestOfferFromUnknownPeerCreatesLink(t *testing.T) {
	c, s := newTestCoordinator("z", domain.RoleMember)
	defer c.Close()

	c.HandleOffer("b", "bob", "their-offer")
	require.NotNil(t, c.EngineFor("b"))
	assert.Equal(t, peer.StateConnected, c.EngineFor("b").State())
	assert.Equal(t, 1, s.answersTo()["b"])
}

func TestMemberLeftDestroysLinkIdempotently(t *testing.T) {
	c, _ := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()

	c.HandleMemberJoined(protocol.MemberInfo{ID: "b", Name: "bob"})
	eng := c.EngineFor("b")
	require.NotNil(t, eng)

	c.HandleMemberLeft("b")
	c.HandleMemberLeft("b")

	assert.Nil(t, c.EngineFor("b"))
	assert.Empty(t, c.Peers())
	assert.Equal(t, peer.StateClosed, eng.State())
}

func TestAnswerForUnknownPeerIsDropped(t *testing.T) {
	c, _ := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()
	c.HandleAnswer("ghost", "sdp")
	c.HandleCandidate("ghost", protocol.Candidate{Candidate: "x"})
}

func TestSetMutedAnnounces(t *testing.T) {
	c, s := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()

	c.SetMuted(true)
	assert.True(t, c.Muted())
	assert.Equal(t, []bool{true}, s.muteStates())
}

func TestAdminMuteIsIdempotentSet(t *testing.T) {
	c, s := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()

	c.HandleAdminMute(true)
	c.HandleAdminMute(true)

	// Set, not toggle: the second command changes nothing and is not
	// re-announced.
	assert.True(t, c.Muted())
	assert.Equal(t, []bool{true}, s.muteStates())

	c.HandleAdminMute(false)
	assert.False(t, c.Muted())
	assert.Equal(t, []bool{true, false}, s.muteStates())
}

func TestAdminCommandsRequireAdminRole(t *testing.T) {
	member, ms := newTestCoordinator("a", domain.RoleMember)
	defer member.Close()
	member.MuteAll()
	assert.Empty(t, ms.adminCmds())

	admin, as := newTestCoordinator("b", domain.RoleAdmin)
	defer admin.Close()
	admin.MuteAll()
	admin.UnmuteAll()
	admin.MuteOne("x")
	admin.UnmuteOne("x")
	assert.Equal(t, []string{
		protocol.TypeMuteAll,
		protocol.TypeUnmuteAll,
		protocol.TypeMuteUser,
		protocol.TypeUnmuteUser,
	}, as.adminCmds())
}

func TestCloseTearsDownEveryLink(t *testing.T) {
	c, _ := newTestCoordinator("a", domain.RoleMember)

	c.HandleExistingMembers([]protocol.MemberInfo{
		{ID: "b", Name: "bob"},
		{ID: "c", Name: "carol"},
	})
	engB := c.EngineFor("b")
	engC := c.EngineFor("c")

	c.Close()
	c.Close()

	assert.Empty(t, c.Peers())
	assert.Equal(t, peer.StateClosed, engB.State())
	assert.Equal(t, peer.StateClosed, engC.State())

	// Post-close notifications are ignored.
	c.HandleMemberJoined(protocol.MemberInfo{ID: "d", Name: "dave"})
	assert.Empty(t, c.Peers())
}

func TestFiredOfferTimersArePruned(t *testing.T) {
	c, s := newTestCoordinator("a", domain.RoleMember)
	defer c.Close()

	c.HandleExistingMembers([]protocol.MemberInfo{
		{ID: "b", Name: "bob"},
		{ID: "c", Name: "carol"},
	})
	c.HandleMemberJoined(protocol.MemberInfo{ID: "d", Name: "dave"})

	require.Eventually(t, func() bool {
		offers := s.offersTo()
		return offers["b"] == 1 && offers["c"] == 1 && offers["d"] == 1
	}, time.Second, time.Millisecond)

	// Each fired timer removes itself, so churn over a long call cannot
	// accumulate dead timers.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.timers) == 0
	}, time.Second, time.Millisecond)
}
