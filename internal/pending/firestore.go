package pending

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists resume contexts in Google Cloud Firestore so
// they survive instance restarts and are visible to every replica.
//
// Error handling strategy mirrors the rest of the flow: reads that fail
// surface errors (the caller degrades to the no-pending-action path),
// expired documents read as absent and are swept by the cleanup loop.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{client: client, collection: collection}, nil
}

// Put stores or replaces the context for its journey ID
func (s *FirestoreStore) Put(ctx context.Context, rc *ResumeContext) error {
	_, err := s.client.Collection(s.collection).Doc(rc.JourneyID).Set(ctx, rc)
	if err != nil {
		return fmt.Errorf("storing resume context: %w", err)
	}
	return nil
}

// Get retrieves a context, or ErrContextNotFound
func (s *FirestoreStore) Get(ctx context.Context, journeyID string) (*ResumeContext, error) {
	doc, err := s.client.Collection(s.collection).Doc(journeyID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching resume context: %w", err)
	}

	var rc ResumeContext
	if err := doc.DataTo(&rc); err != nil {
		return nil, fmt.Errorf("decoding resume context: %w", err)
	}
	if rc.Expired(time.Now()) {
		return nil, ErrContextNotFound
	}
	return &rc, nil
}

// Delete removes a context
func (s *FirestoreStore) Delete(ctx context.Context, journeyID string) error {
	_, err := s.client.Collection(s.collection).Doc(journeyID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting resume context: %w", err)
	}
	return nil
}

// DeleteExpired removes contexts past their expiry
func (s *FirestoreStore) DeleteExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<", time.Now()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("querying expired contexts: %w", err)
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("pending", "Failed to delete expired context", map[string]any{
				"journey": doc.Ref.ID,
				"error":   err.Error(),
			})
			continue
		}
		count++
	}
	return count, nil
}

// Count reports how many contexts are stored
func (s *FirestoreStore) Count(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("counting resume contexts: %w", err)
		}
		count++
	}
	return count, nil
}

// Close releases the underlying Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
