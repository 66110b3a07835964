package repositories

import (
	"context"

	"lostfound-chat/internal/docstore"
	"lostfound-chat/internal/models"
)

const usersCollection = "users"

// UserRepository reads and writes public user profiles.
type UserRepository interface {
	GetProfile(ctx context.Context, uid string) (models.UserProfile, bool, error)
	UpsertProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error)
}

// UserRepo keeps one document per uid in the "users" collection.
type UserRepo struct {
	store docstore.Store
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{store: store}
}

// GetProfile looks a profile up by uid. found is false when no document exists.
func (r *UserRepo) GetProfile(ctx context.Context, uid string) (models.UserProfile, bool, error) {
	docs, err := r.store.GetByField(ctx, usersCollection, "uid", uid)
	if err != nil {
		return models.UserProfile{}, false, err
	}
	if len(docs) == 0 {
		return models.UserProfile{}, false, nil
	}
	return decodeProfile(docs[0]), true, nil
}

// UpsertProfile creates the uid's profile or overwrites its fields.
func (r *UserRepo) UpsertProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	fields := map[string]any{
		"uid":         profile.UID,
		"displayName": profile.DisplayName,
		"photoURL":    profile.PhotoURL,
		"email":       profile.Email,
	}
	id, created, err := r.store.CreateUnique(ctx, usersCollection, profile.UID, fields)
	if err != nil {
		return models.UserProfile{}, err
	}
	if !created {
		if err := r.store.Update(ctx, usersCollection, id, fields); err != nil {
			return models.UserProfile{}, err
		}
	}
	profile.ID = id
	return profile, nil
}

func decodeProfile(doc docstore.Document) models.UserProfile {
	p := models.UserProfile{ID: doc.ID}
	p.UID, _ = doc.Fields["uid"].(string)
	p.DisplayName, _ = doc.Fields["displayName"].(string)
	p.PhotoURL, _ = doc.Fields["photoURL"].(string)
	p.Email, _ = doc.Fields["email"].(string)
	return p
}
