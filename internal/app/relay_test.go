package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeyev/voicemesh/internal/core"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

func TestForwardDeliversToTargetOnly(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	p1, _ := reg.Admit(c1, "a", domain.RoleMember, "member-pw", "")
	p2, _ := reg.Admit(c2, "b", domain.RoleMember, "member-pw", "")

	frame := core.Frame(`{"type":"offer","senderId":"` + string(p1.ID) + `","sdp":"x"}`)
	relay.Forward(p1.ID, p2.ID, frame)

	require.Len(t, c2.typed(protocol.TypeOffer), 1)
	assert.Empty(t, c1.typed(protocol.TypeOffer))
}

func TestForwardToDepartedTargetIsDropped(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)
	p1, _ := reg.Admit(&fakeConn{}, "a", domain.RoleMember, "member-pw", "")

	relay.Forward(p1.ID, "gone", core.Frame(`{"type":"offer"}`))
}

func TestAdminCommandFromNonAdminIsDropped(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)

	c1 := &fakeConn{}
	p1, _ := reg.Admit(c1, "a", domain.RoleMember, "member-pw", "")
	p2, _ := reg.Admit(&fakeConn{}, "b", domain.RoleMember, "member-pw", "")

	relay.ForwardAdmin(p2, protocol.TypeMuteUser, p1.ID)
	assert.Empty(t, c1.typed(protocol.TypeAdminMute))
}

func TestAdminMuteUserReachesTarget(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)

	ca := &fakeConn{}
	cb := &fakeConn{}
	admin, err := reg.Admit(ca, "boss", domain.RoleAdmin, "member-pw", "admin-pw")
	require.NoError(t, err)
	target, _ := reg.Admit(cb, "b", domain.RoleMember, "member-pw", "")

	relay.ForwardAdmin(admin, protocol.TypeMuteUser, target.ID)

	notices := cb.typed(protocol.TypeAdminMute)
	require.Len(t, notices, 1)
	assert.Equal(t, string(admin.ID), notices[0]["adminId"])
	assert.Equal(t, "boss", notices[0]["adminName"])
	assert.Empty(t, ca.typed(protocol.TypeAdminMute))
}

func TestAdminMuteAllFansOutExceptAdmin(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)

	ca := &fakeConn{}
	cb := &fakeConn{}
	cc := &fakeConn{}
	admin, _ := reg.Admit(ca, "boss", domain.RoleAdmin, "member-pw", "admin-pw")
	reg.Admit(cb, "b", domain.RoleMember, "member-pw", "")
	reg.Admit(cc, "c", domain.RoleMember, "member-pw", "")

	relay.ForwardAdmin(admin, protocol.TypeMuteAll, "")

	assert.Len(t, cb.typed(protocol.TypeAdminMuteAll), 1)
	assert.Len(t, cc.typed(protocol.TypeAdminMuteAll), 1)
	assert.Empty(t, ca.typed(protocol.TypeAdminMuteAll))
}

func TestAdminUnmuteAll(t *testing.T) {
	reg := newTestRegistry()
	relay := NewRelay(reg)

	cb := &fakeConn{}
	admin, _ := reg.Admit(&fakeConn{}, "boss", domain.RoleAdmin, "member-pw", "admin-pw")
	reg.Admit(cb, "b", domain.RoleMember, "member-pw", "")

	relay.ForwardAdmin(admin, protocol.TypeUnmuteAll, "")
	assert.Len(t, cb.typed(protocol.TypeAdminUnmuteAll), 1)
}
