package document

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeKind identifies which isolation boundary a scope addresses.
type ScopeKind int

const (
	// ScopeGlobal: documents owned by the user with no conversation or pool tag.
	ScopeGlobal ScopeKind = iota
	// ScopeConversation: documents owned by the user and tagged to one conversation.
	ScopeConversation
	// ScopePool: documents shared in one knowledge pool, regardless of owner.
	ScopePool
)

// Scope is the resolved isolation boundary for a document or a search.
// A scope is exactly one of: global, one conversation, or one pool; the
// constructors make mixed scopes unrepresentable. The zero value is the
// global scope.
//
// Searches under one scope must never see documents from another; the three
// scopes are mutually exclusive at query time and are never unioned.
type Scope struct {
	conversationID *uuid.UUID
	poolID         *uuid.UUID
}

// GlobalScope returns the scope of untagged, user-global documents.
func GlobalScope() Scope {
	return Scope{}
}

// ConversationScope returns the scope of documents tagged to one conversation.
func ConversationScope(conversationID uuid.UUID) Scope {
	id := conversationID
	return Scope{conversationID: &id}
}

// PoolScope returns the scope of documents shared in one knowledge pool.
func PoolScope(poolID uuid.UUID) Scope {
	id := poolID
	return Scope{poolID: &id}
}

// Kind reports which isolation boundary this scope addresses.
func (s Scope) Kind() ScopeKind {
	switch {
	case s.poolID != nil:
		return ScopePool
	case s.conversationID != nil:
		return ScopeConversation
	default:
		return ScopeGlobal
	}
}

// ConversationID returns the conversation id and whether this is a conversation scope.
func (s Scope) ConversationID() (uuid.UUID, bool) {
	if s.conversationID == nil {
		return uuid.Nil, false
	}
	return *s.conversationID, true
}

// PoolID returns the pool id and whether this is a pool scope.
func (s Scope) PoolID() (uuid.UUID, bool) {
	if s.poolID == nil {
		return uuid.Nil, false
	}
	return *s.poolID, true
}

// sqlArgs returns the (pool_id, conversation_id) pair in the nullable form the
// store's scope-dispatch SQL expects.
func (s Scope) sqlArgs() (poolID, conversationID *uuid.UUID) {
	return s.poolID, s.conversationID
}

func (s Scope) String() string {
	switch s.Kind() {
	case ScopePool:
		return fmt.Sprintf("pool:%s", *s.poolID)
	case ScopeConversation:
		return fmt.Sprintf("conversation:%s", *s.conversationID)
	default:
		return "global"
	}
}
