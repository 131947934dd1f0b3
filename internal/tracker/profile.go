package tracker

import (
	"context"
	"slices"
	"strings"

	"anipink/internal/validate"
	"anipink/pkg/models"
)

func (o *Orchestrator) AddLike(ctx context.Context, genre string) (models.Profile, error) {
	return o.editList(ctx, genre, true, true)
}

func (o *Orchestrator) RemoveLike(ctx context.Context, genre string) (models.Profile, error) {
	return o.editList(ctx, genre, true, false)
}

func (o *Orchestrator) AddDislike(ctx context.Context, genre string) (models.Profile, error) {
	return o.editList(ctx, genre, false, true)
}

func (o *Orchestrator) RemoveDislike(ctx context.Context, genre string) (models.Profile, error) {
	return o.editList(ctx, genre, false, false)
}

type usernameIntent struct {
	Username string `json:"username" validate:"required,max=30"`
}

func (o *Orchestrator) SetUsername(ctx context.Context, name string) (models.Profile, error) {
	name = strings.TrimSpace(name)
	if err := validate.Struct(usernameIntent{Username: name}); err != nil {
		return models.Profile{}, err
	}
	return o.rec.UpdateProfile(ctx, func(p models.Profile) (models.ProfileUpdate, error) {
		if p.Username == name {
			return models.ProfileUpdate{}, nil
		}
		return models.ProfileUpdate{Username: &name}, nil
	})
}

// editList adds or removes one entry; likes and dislikes may overlap.
func (o *Orchestrator) editList(ctx context.Context, item string, likes, add bool) (models.Profile, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return models.Profile{}, validate.Fields("genre", "is required")
	}
	return o.rec.UpdateProfile(ctx, func(p models.Profile) (models.ProfileUpdate, error) {
		cur := p.Dislikes
		if likes {
			cur = p.Likes
		}
		if slices.Contains(cur, item) == add {
			return models.ProfileUpdate{}, nil
		}
		next := slices.Clone(cur)
		if add {
			next = append(next, item)
		} else {
			next = slices.DeleteFunc(next, func(s string) bool { return s == item })
		}
		next = models.Dedup(next)
		if likes {
			return models.ProfileUpdate{Likes: &next}, nil
		}
		return models.ProfileUpdate{Dislikes: &next}, nil
	})
}
