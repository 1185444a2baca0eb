package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

type UserRepository struct {
	p *Persistence
}

func (r *UserRepository) SaveUser(_ context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return r.p.update(func(s *state) error {
		createdAt := user.CreatedAt
		if existing, ok := s.Users[user.ID]; ok {
			createdAt = existing.CreatedAt
		}

		s.Users[user.ID] = &userRecord{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			IsActive:  user.IsActive,
			CreatedAt: createdAt,
		}

		return nil
	})
}

func (r *UserRepository) SaveCredential(_ context.Context, credential *models.Credential) error {
	return r.p.update(func(s *state) error {
		if _, ok := s.Users[credential.UserID]; !ok {
			return fmt.Errorf("%w: %s", persistence.ErrUserNotFound, credential.UserID)
		}

		record := &credentialRecord{
			UserID:      credential.UserID,
			Provider:    credential.Provider,
			ExternalID:  credential.ExternalID,
			DisplayName: credential.DisplayName,
		}

		for i, existing := range s.Credentials {
			if existing.UserID == credential.UserID && existing.Provider == credential.Provider {
				s.Credentials[i] = record

				return nil
			}
		}

		s.Credentials = append(s.Credentials, record)

		return nil
	})
}
