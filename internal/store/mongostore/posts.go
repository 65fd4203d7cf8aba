package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

// PostStore is the MongoDB implementation of store.PostStore.
type PostStore struct {
	col *mongo.Collection
}

func NewPostStore(db *mongo.Database) *PostStore {
	return &PostStore{col: db.Collection("posts")}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, store.ErrNotFound
	}
	return oid, nil
}

func (s *PostStore) Create(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.Status == "" {
		post.Status = models.PostStatusDraft
	}

	res, err := s.col.InsertOne(ctx, post)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		post.ID = oid
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var post models.Post
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostStore) UpdateContent(ctx context.Context, id string, content *string, mediaRefs []string, scheduledAt *time.Time) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if content != nil {
		set["content"] = *content
	}
	if mediaRefs != nil {
		set["media_refs"] = mediaRefs
	}
	if scheduledAt != nil {
		set["scheduled_at"] = *scheduledAt
	}

	// Only drafts and failed posts are editable; queued or published
	// content is frozen.
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": []string{models.PostStatusDraft, models.PostStatusFailed}}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

func (s *PostStore) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostStore) ListByUser(ctx context.Context, userID, status string, page, limit int) ([]models.Post, int64, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, 0, err
	}

	filter := bson.M{"user_id": uid}
	if status != "" {
		filter["status"] = status
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *PostStore) ListScheduled(ctx context.Context) ([]models.Post, error) {
	cursor, err := s.col.Find(ctx, bson.M{
		"status":       models.PostStatusScheduled,
		"scheduled_at": bson.M{"$ne": nil},
		"published_at": nil,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostStore) ListStalePublishing(ctx context.Context, before time.Time) ([]models.Post, error) {
	cursor, err := s.col.Find(ctx, bson.M{
		"status":        models.PostStatusPublishing,
		"publishing_at": bson.M{"$lt": before},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostStore) ListStuckPublished(ctx context.Context) ([]models.Post, error) {
	// Legacy inconsistency: published status without a published_at. These
	// are demoted back to scheduled by the sweeper.
	cursor, err := s.col.Find(ctx, bson.M{
		"status":       models.PostStatusPublished,
		"published_at": nil,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostStore) SetScheduled(ctx context.Context, id string, from []string, scheduledAt *time.Time) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	set := bson.M{
		"status":     models.PostStatusScheduled,
		"updated_at": time.Now().UTC(),
	}
	if scheduledAt != nil {
		set["scheduled_at"] = scheduledAt.UTC()
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": from}},
		bson.M{
			"$set":   set,
			"$unset": bson.M{"failed_at": "", "error_message": "", "publishing_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

// ClaimPublishing is the only path into the publishing status. The status
// filter makes it a compare-and-set: at most one worker wins the claim.
func (s *PostStore) ClaimPublishing(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var post models.Post
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "status": models.PostStatusScheduled},
		bson.M{"$set": bson.M{
			"status":        models.PostStatusPublishing,
			"publishing_at": now,
			"updated_at":    now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrStateConflict
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostStore) MarkPublished(ctx context.Context, id, platformPostID string, metadata map[string]string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	set := bson.M{
		"status":           models.PostStatusPublished,
		"published_at":     now,
		"platform_post_id": platformPostID,
		"updated_at":       now,
	}
	for k, v := range metadata {
		set["metadata."+k] = v
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": models.PostStatusPublishing},
		bson.M{
			"$set":   set,
			"$unset": bson.M{"failed_at": "", "error_message": "", "publishing_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

func (s *PostStore) MarkFailed(ctx context.Context, id, reason string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$ne": models.PostStatusPublished}},
		bson.M{
			"$set": bson.M{
				"status":        models.PostStatusFailed,
				"failed_at":     now,
				"error_message": reason,
				"updated_at":    now,
			},
			"$unset": bson.M{"publishing_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

// FailStalePublishing force-fails a post only if it is still publishing
// and its claim predates the cutoff. A post another worker reverted or
// completed between the sweeper's scan and this call is left alone.
func (s *PostStore) FailStalePublishing(ctx context.Context, id string, before time.Time, reason string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"_id":           oid,
			"status":        models.PostStatusPublishing,
			"publishing_at": bson.M{"$lt": before},
		},
		bson.M{
			"$set": bson.M{
				"status":        models.PostStatusFailed,
				"failed_at":     now,
				"error_message": reason,
				"updated_at":    now,
			},
			"$unset": bson.M{"publishing_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

// RevertToScheduled hands a transiently failed publish back to the queue.
func (s *PostStore) RevertToScheduled(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": models.PostStatusPublishing},
		bson.M{
			"$set":   bson.M{"status": models.PostStatusScheduled, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"publishing_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}

func (s *PostStore) SetDraft(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "status": models.PostStatusScheduled},
		bson.M{
			"$set":   bson.M{"status": models.PostStatusDraft, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"scheduled_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrStateConflict
	}
	return nil
}
