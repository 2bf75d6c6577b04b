package domain

import (
	"context"
	"time"
)

// GenerationRequest is everything the generator sees for one turn.
type GenerationRequest struct {
	UserID  UserID
	History []Message
	Profile *UserProfile
	Daily   *DailyAggregate
	Image   *ImageRef
	Now     time.Time
}

// GenerationReply is the structured reply of the generator.
type GenerationReply struct {
	Message string          `json:"message"`
	Action  *ActionProposal `json:"action,omitempty"`
}

// Generator produces the assistant reply for a turn.
type Generator interface {
	GenerateTurn(ctx context.Context, req GenerationRequest) (*GenerationReply, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, userID UserID) (string, error)
}

// NutritionEstimate is a rough per-image estimate.
type NutritionEstimate struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type ImageDescription struct {
	Description        string             `json:"description"`
	EstimatedNutrition *NutritionEstimate `json:"estimated_nutrition,omitempty"`
}

// ImageDescriber describes a food photo.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, ref ImageRef) (*ImageDescription, error)
}

// ConversationStore persists whole conversations per user.
type ConversationStore interface {
	ListConversations(ctx context.Context, userID UserID) ([]ConversationSummary, error)
	GetConversation(ctx context.Context, userID UserID, id ConversationID) (*Conversation, error)
	// UpsertConversation creates the conversation when id is empty and
	// returns the id that now holds messages.
	UpsertConversation(ctx context.Context, userID UserID, messages []Message, id ConversationID) (ConversationID, error)
	DeleteConversation(ctx context.Context, userID UserID, id ConversationID) error
}

// Domain stores. A store error wrapping ErrUnavailable means the store could
// not be reached at all; any other error is a failed mutation.
type MealStore interface {
	CreateMeal(ctx context.Context, userID UserID, date time.Time, meal MealPayload) (RecordID, error)
}

type WorkoutStore interface {
	CreateWorkout(ctx context.Context, userID UserID, date time.Time, workout WorkoutPayload) (RecordID, error)
}

type WaterStore interface {
	CreateWater(ctx context.Context, userID UserID, date time.Time, water WaterPayload) (RecordID, error)
}

type RecipeStore interface {
	CreateRecipe(ctx context.Context, userID UserID, recipe RecipePayload) (RecordID, error)
}

// HealthStore bundles the domain stores a single backend usually provides.
type HealthStore interface {
	MealStore
	WorkoutStore
	WaterStore
	RecipeStore
}

// ContextProvider supplies the read-only context of a turn.
type ContextProvider interface {
	Profile(ctx context.Context, userID UserID) (*UserProfile, error)
	DailyAggregate(ctx context.Context, userID UserID, date time.Time) (*DailyAggregate, error)
}

// CacheInvalidator drops the named aggregates for a user.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID UserID, keys []CacheKey) error
}

// Microphone hands out exclusive audio captures.
type Microphone interface {
	Open(ctx context.Context) (AudioCapture, error)
}

// AudioCapture is one acquisition of the capture device.
type AudioCapture interface {
	// Stop ends recording and returns what was captured.
	Stop() (audio []byte, mimeType string, err error)
	// Release gives the device back. Callers release exactly once.
	Release() error
}
