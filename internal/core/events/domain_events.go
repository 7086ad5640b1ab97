package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeShantytownCreated = "shantytown.created"
	EventTypeShantytownUpdated = "shantytown.updated"
	EventTypeShantytownClosed  = "shantytown.closed"
	EventTypeShantytownDeleted = "shantytown.deleted"
	EventTypeCommentCreated    = "shantytown_comment.created"
	EventTypePlanCreated       = "plan.created"
	EventTypePlanClosed        = "plan.closed"
	EventTypeAccessCreated     = "user_access.created"
	EventTypeAccessActivated   = "user_access.activated"
	EventTypeAccessExpired     = "user_access.expired"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type ShantytownEvent struct {
	BaseEvent
	ShantytownID    int64  `json:"shantytown_id"`
	DepartementCode string `json:"departement_code"`
	ActorID         int64  `json:"actor_id"`
}

func NewShantytownEvent(eventType string, shantytownID int64, departementCode string, actorID int64) *ShantytownEvent {
	return &ShantytownEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"shantytown_id":    shantytownID,
			"departement_code": departementCode,
			"actor_id":         actorID,
		}),
		ShantytownID:    shantytownID,
		DepartementCode: departementCode,
		ActorID:         actorID,
	}
}

type CommentCreatedEvent struct {
	BaseEvent
	CommentID    int64 `json:"comment_id"`
	ShantytownID int64 `json:"shantytown_id"`
	AuthorID     int64 `json:"author_id"`
	Private      bool  `json:"private"`
}

func NewCommentCreatedEvent(commentID, shantytownID, authorID int64, private bool) *CommentCreatedEvent {
	return &CommentCreatedEvent{
		BaseEvent: newBase(EventTypeCommentCreated, map[string]interface{}{
			"comment_id":    commentID,
			"shantytown_id": shantytownID,
			"author_id":     authorID,
			"private":       private,
		}),
		CommentID:    commentID,
		ShantytownID: shantytownID,
		AuthorID:     authorID,
		Private:      private,
	}
}

type PlanEvent struct {
	BaseEvent
	PlanID  int64 `json:"plan_id"`
	ActorID int64 `json:"actor_id"`
}

func NewPlanEvent(eventType string, planID, actorID int64) *PlanEvent {
	return &PlanEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"plan_id":  planID,
			"actor_id": actorID,
		}),
		PlanID:  planID,
		ActorID: actorID,
	}
}

type AccessEvent struct {
	BaseEvent
	AccessID  int64     `json:"access_id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAccessEvent(eventType string, accessID, userID int64, expiresAt time.Time) *AccessEvent {
	return &AccessEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"access_id":  accessID,
			"user_id":    userID,
			"expires_at": expiresAt,
		}),
		AccessID:  accessID,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
}
