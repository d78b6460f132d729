package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

type ProfileService struct {
	profiles *repository.ProfileRepository
	log      zerolog.Logger
	now      func() time.Time
}

func NewProfileService(profiles *repository.ProfileRepository, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		log:      log,
		now:      utcNow,
	}
}

// EnsureProfile returns the subject's profile, creating it on first call. The role is
// fixed by whichever concurrent call writes first; later hints are ignored.
func (s *ProfileService) EnsureProfile(ctx context.Context, subjectID, roleHint string) (models.UserProfile, error) {
	if subjectID == "" {
		return models.UserProfile{}, apperr.ErrUnauthenticated
	}

	profile, err := s.profiles.Get(ctx, subjectID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return models.UserProfile{}, storeErr("get profile", err)
	}

	profile = models.UserProfile{
		SubjectID: subjectID,
		Role:      models.RoleFromHint(roleHint),
		Nickname:  "",
		CreatedAt: s.now(),
	}
	err = s.profiles.Create(ctx, profile)
	switch {
	case err == nil:
		s.log.Info().Str("subject_id", subjectID).Str("role", string(profile.Role)).Msg("profile created")
		return profile, nil
	case errors.Is(err, repository.ErrProfileExists):
		winner, err := s.profiles.Get(ctx, subjectID)
		if err != nil {
			return models.UserProfile{}, storeErr("get profile", err)
		}
		return winner, nil
	default:
		return models.UserProfile{}, storeErr("create profile", err)
	}
}

func (s *ProfileService) GetProfile(ctx context.Context, subjectID string) (models.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return models.UserProfile{}, apperr.NotFound("profile")
		}
		return models.UserProfile{}, storeErr("get profile", err)
	}
	return profile, nil
}

func (s *ProfileService) UpdateNickname(ctx context.Context, subjectID, nickname string) (models.UserProfile, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return models.UserProfile{}, apperr.Validation("nickname is required")
	}

	profile, err := s.profiles.UpdateNickname(ctx, subjectID, nickname, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return models.UserProfile{}, apperr.NotFound("profile")
		}
		return models.UserProfile{}, storeErr("update nickname", err)
	}
	return profile, nil
}
