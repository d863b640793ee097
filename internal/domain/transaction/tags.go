package transaction

import (
	"context"
	"errors"
	"time"
)

var ErrTagNotFound = errors.New("tag not found")

// Tag is a user-defined label applied to transactions across accounts.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// TagRepository persists Tags. Deleting a tag detaches it from all
// transactions (cascade on the join table).
type TagRepository interface {
	CreateTag(ctx context.Context, name string) (*Tag, error)
	ListTags(ctx context.Context) ([]*Tag, error)
	DeleteTag(ctx context.Context, id string) error
}
