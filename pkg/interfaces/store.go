package interfaces

import "xiaoqiu/pkg/types"

// Archive persists finished sessions locally.
type Archive interface {
	SaveConversation(rec *types.ConversationRecord) error
	SaveAssessment(rec *types.AssessmentRecord) error
	ListConversations(userID string, limit int) ([]*types.ConversationRecord, error)
	DeleteConversation(id string) error
	Close() error
}
