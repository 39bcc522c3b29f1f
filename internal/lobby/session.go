package lobby

import (
	"github.com/lox/twentyone/internal/protocol"
)

// Status is the lifecycle phase of a session
type Status uint8

const (
	Waiting Status = iota
	Active
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	default:
		return ""
	}
}

// Member is one participant of a session
type Member struct {
	ID          string
	Name        string
	NetworkRole protocol.NetworkRole
	Ready       bool

	// joined orders members for deterministic host promotion
	joined uint64
}

// Wire returns the serialized form sent in lobby_update
func (m Member) Wire() protocol.Member {
	return protocol.Member{
		ID:          m.ID,
		Name:        m.Name,
		NetworkRole: m.NetworkRole,
		Ready:       m.Ready,
	}
}

// Session is a point-in-time copy of a lobby. Mutating it has no effect
// on the registry.
type Session struct {
	Code    string
	Status  Status
	Members []Member

	// Rounds counts rounds started since the current pair formed
	Rounds int
}

// Host returns the member currently holding the host role
func (s Session) Host() (Member, bool) {
	for _, m := range s.Members {
		if m.NetworkRole == protocol.Host {
			return m, true
		}
	}
	return Member{}, false
}

// Guest returns the guest member, if one has joined
func (s Session) Guest() (Member, bool) {
	for _, m := range s.Members {
		if m.NetworkRole == protocol.Guest {
			return m, true
		}
	}
	return Member{}, false
}

// Member looks up a member by id
func (s Session) Member(id string) (Member, bool) {
	for _, m := range s.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// IDs returns the member ids in join order
func (s Session) IDs() []string {
	ids := make([]string, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.ID
	}
	return ids
}

// Wire returns the member list in its serialized form
func (s Session) Wire() []protocol.Member {
	out := make([]protocol.Member, len(s.Members))
	for i, m := range s.Members {
		out[i] = m.Wire()
	}
	return out
}

// session is the registry-owned mutable record
type session struct {
	code    string
	status  Status
	members []*Member
	rounds  int
}

func (s *session) snapshot() Session {
	members := make([]Member, len(s.members))
	for i, m := range s.members {
		members[i] = *m
	}
	return Session{Code: s.code, Status: s.status, Members: members, Rounds: s.rounds}
}

func (s *session) find(id string) (int, *Member) {
	for i, m := range s.members {
		if m.ID == id {
			return i, m
		}
	}
	return -1, nil
}

// promote hands the host role to the earliest-joined remaining member
// when nobody holds it.
func (s *session) promote() (*Member, bool) {
	var earliest *Member
	for _, m := range s.members {
		if m.NetworkRole == protocol.Host {
			return nil, false
		}
		if earliest == nil || m.joined < earliest.joined {
			earliest = m
		}
	}
	if earliest == nil {
		return nil, false
	}
	earliest.NetworkRole = protocol.Host
	earliest.Ready = true
	return earliest, true
}
