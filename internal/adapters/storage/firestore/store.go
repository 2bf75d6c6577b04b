package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Store is the Firestore-backed domain.ConversationStore used in GCP mode.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (NUTRIA_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection("conversations")
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

// mapErr translates gRPC statuses into domain sentinels.
func mapErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.Unavailable:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	default:
		return err
	}
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type conversationDoc struct {
	UserID       string       `firestore:"user_id"`
	Title        string       `firestore:"title"`
	Messages     []messageDoc `firestore:"messages"`
	MessageCount int          `firestore:"message_count"`
	CreatedAt    time.Time    `firestore:"created_at"`
	UpdatedAt    time.Time    `firestore:"updated_at"`
}

type messageDoc struct {
	ID                   string    `firestore:"id"`
	Role                 string    `firestore:"role"`
	Content              string    `firestore:"content"`
	ImageURL             string    `firestore:"image_url,omitempty"`
	ImageMIME            string    `firestore:"image_mime,omitempty"`
	CreatedAt            time.Time `firestore:"created_at"`
	Action               string    `firestore:"action,omitempty"` // JSON wire form
	Confirmed            bool      `firestore:"confirmed"`
	RequiresConfirmation bool      `firestore:"requires_confirmation"`
}

func toMessageDocs(msgs []domain.Message) ([]messageDoc, error) {
	out := make([]messageDoc, 0, len(msgs))
	for _, m := range msgs {
		doc := messageDoc{
			ID:                   string(m.ID),
			Role:                 string(m.Role),
			Content:              m.Content,
			CreatedAt:            m.CreatedAt,
			Confirmed:            m.Confirmed,
			RequiresConfirmation: m.RequiresConfirmation,
		}
		// inline image bytes stay out of the document
		if m.Image != nil {
			doc.ImageURL = m.Image.URL
			doc.ImageMIME = m.Image.MIMEType
		}
		if m.Action != nil {
			raw, err := json.Marshal(m.Action)
			if err != nil {
				return nil, fmt.Errorf("encode action of %s: %w", m.ID, err)
			}
			doc.Action = string(raw)
		}
		out = append(out, doc)
	}
	return out, nil
}

func fromMessageDocs(docs []messageDoc) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		m := domain.Message{
			ID:                   domain.MessageID(d.ID),
			Role:                 domain.Role(d.Role),
			Content:              d.Content,
			CreatedAt:            d.CreatedAt,
			Confirmed:            d.Confirmed,
			RequiresConfirmation: d.RequiresConfirmation,
		}
		if d.ImageURL != "" {
			m.Image = &domain.ImageRef{URL: d.ImageURL, MIMEType: d.ImageMIME}
		}
		if d.Action != "" {
			var p domain.ActionProposal
			if err := json.Unmarshal([]byte(d.Action), &p); err != nil {
				return nil, fmt.Errorf("decode action of %s: %w", d.ID, err)
			}
			m.Action = &p
		}
		out = append(out, m)
	}
	return out, nil
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

func (s *Store) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	q := s.conversationsCol().
		Where("user_id", "==", string(userID)).
		OrderBy("updated_at", firestore.Desc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.ConversationSummary
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListConversations: %w", mapErr(err))
		}

		var doc conversationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode conversationDoc: %w", err)
		}

		title := doc.Title
		if title == "" {
			if msgs, err := fromMessageDocs(doc.Messages); err == nil {
				title = domain.DeriveTitle("", msgs)
			} else {
				title = domain.DefaultTitle
			}
		}

		out = append(out, domain.ConversationSummary{
			ID:           domain.ConversationID(snap.Ref.ID),
			Title:        title,
			MessageCount: doc.MessageCount,
			UpdatedAt:    doc.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) (*domain.Conversation, error) {
	snap, err := s.conversationDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetConversation: %w", mapErr(err))
	}

	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetConversation decode: %w", err)
	}
	if doc.UserID != string(userID) {
		return nil, domain.ErrNotFound
	}

	msgs, err := fromMessageDocs(doc.Messages)
	if err != nil {
		return nil, err
	}

	return &domain.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     domain.DeriveTitle(doc.Title, msgs),
		Messages:  msgs,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *Store) UpsertConversation(ctx context.Context, userID domain.UserID, messages []domain.Message, id domain.ConversationID) (domain.ConversationID, error) {
	docs, err := toMessageDocs(messages)
	if err != nil {
		return "", err
	}
	now := s.now()

	if id == "" {
		id = domain.ConversationID(uuid.NewString())
		doc := conversationDoc{
			UserID:       string(userID),
			Messages:     docs,
			MessageCount: len(docs),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := s.conversationDoc(id).Create(ctx, doc); err != nil {
			return "", fmt.Errorf("firestore CreateConversation: %w", mapErr(err))
		}
		return id, nil
	}

	ref := s.conversationDoc(id)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		owner, err := snap.DataAt("user_id")
		if err != nil || owner != string(userID) {
			return domain.ErrNotFound
		}
		return tx.Set(ref, map[string]interface{}{
			"messages":      docs,
			"message_count": len(docs),
			"updated_at":    now,
		}, firestore.MergeAll)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || status.Code(err) == codes.NotFound {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("firestore UpdateConversation: %w", mapErr(err))
	}
	return id, nil
}

func (s *Store) DeleteConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) error {
	ref := s.conversationDoc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		owner, err := snap.DataAt("user_id")
		if err != nil || owner != string(userID) {
			return domain.ErrNotFound
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || status.Code(err) == codes.NotFound {
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore DeleteConversation: %w", mapErr(err))
	}
	return nil
}
