package domain

// RoomScope is the closed set of broadcast scopes.
type RoomScope string

const (
	ScopeUser         RoomScope = "user"
	ScopeConversation RoomScope = "conversation"
	ScopeCall         RoomScope = "call"
)

// RoomID identifies a broadcast group. Two ids are equal only if both scope
// and id match, so a user and a conversation sharing an id never collide.
type RoomID struct {
	Scope RoomScope
	ID    string
}

func UserRoom(userID string) RoomID         { return RoomID{Scope: ScopeUser, ID: userID} }
func ConversationRoom(convID string) RoomID { return RoomID{Scope: ScopeConversation, ID: convID} }
func CallRoom(convID string) RoomID         { return RoomID{Scope: ScopeCall, ID: convID} }

func (r RoomID) String() string {
	return string(r.Scope) + ":" + r.ID
}
