package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/config"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

type InvitationService struct {
	invites *repository.InvitationRepository
	clients *repository.ClientRepository
	grants  *repository.AccessGrantRepository
	cfg     config.InviteConfig
	log     zerolog.Logger
	now     func() time.Time
	random  io.Reader
}

func NewInvitationService(
	invites *repository.InvitationRepository,
	clients *repository.ClientRepository,
	grants *repository.AccessGrantRepository,
	cfg config.InviteConfig,
	log zerolog.Logger,
) *InvitationService {
	return &InvitationService{
		invites: invites,
		clients: clients,
		grants:  grants,
		cfg:     cfg,
		log:     log,
		now:     utcNow,
		random:  rand.Reader,
	}
}

type CreateInvitationInput struct {
	TherapistID string
	ClientID    string
	ClientName  string
	AvatarID    string
	AvatarName  string
}

// AcceptResult is what a redeemer needs to open the conversation.
type AcceptResult struct {
	ClientID    string `json:"clientId"`
	AvatarID    string `json:"avatarId"`
	ClientName  string `json:"clientName"`
	AvatarName  string `json:"avatarName"`
	TherapistID string `json:"therapistId"`
}

// CreateInvitation mints a PENDING invitation binding the therapist's client to one of the
// avatars assigned to that client.
func (s *InvitationService) CreateInvitation(ctx context.Context, input CreateInvitationInput) (models.Invitation, error) {
	if input.ClientID == "" {
		return models.Invitation{}, apperr.Validation("clientId is required")
	}

	client, err := s.clients.Get(ctx, input.TherapistID, input.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return models.Invitation{}, apperr.NotFound("client")
		}
		return models.Invitation{}, storeErr("get client", err)
	}

	avatarID := input.AvatarID
	if avatarID == "" {
		avatarID = client.SelectedAvatarID
	}
	if avatarID == "" {
		return models.Invitation{}, apperr.Validation("avatarId is required")
	}
	ref, ok := client.Avatar(avatarID)
	if !ok {
		return models.Invitation{}, apperr.Validation("avatar %s is not assigned to client", avatarID)
	}

	clientName := strings.TrimSpace(input.ClientName)
	if clientName == "" {
		clientName = client.Name
	}
	avatarName := strings.TrimSpace(input.AvatarName)
	if avatarName == "" {
		avatarName = ref.AvatarName
	}

	now := s.now()
	code, err := s.reserveCode(ctx, input.TherapistID, now)
	if err != nil {
		return models.Invitation{}, err
	}

	invite := models.Invitation{
		OwnerID:    input.TherapistID,
		InviteCode: code,
		ClientID:   client.ClientID,
		ClientName: clientName,
		AvatarID:   avatarID,
		AvatarName: avatarName,
		Status:     models.InviteStatusPending,
		ExpiresAt:  now.Add(s.cfg.TTL),
		CreatedAt:  now,
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return models.Invitation{}, storeErr("create invitation", err)
	}

	s.log.Info().
		Str("therapist_id", input.TherapistID).
		Str("client_id", invite.ClientID).
		Str("avatar_id", invite.AvatarID).
		Time("expires_at", invite.ExpiresAt).
		Msg("invitation created")
	return invite, nil
}

func (s *InvitationService) reserveCode(ctx context.Context, therapistID string, now time.Time) (string, error) {
	attempts := s.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := s.generateCode()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		err = s.invites.ReserveCode(ctx, code, therapistID, now)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, repository.ErrCodeTaken) {
			return "", storeErr("reserve invite code", err)
		}
		s.log.Warn().Int("attempt", i+1).Msg("invite code collision")
	}
	return "", fmt.Errorf("%w: no free invite code after %d attempts", apperr.ErrConflict, attempts)
}

func (s *InvitationService) generateCode() (string, error) {
	buf := make([]byte, s.cfg.CodeBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return s.cfg.CodePrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// AcceptInvitation redeems a code exactly once and grants the redeemer access to the
// invitation's conversation. Unknown, already accepted and raced codes all report
// ErrInvalidOrExpiredCode; a PENDING code past its expiry reports ErrCodeExpired and stays
// PENDING.
func (s *InvitationService) AcceptInvitation(ctx context.Context, redeemerID, code string) (AcceptResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return AcceptResult{}, apperr.Validation("inviteCode is required")
	}

	invite, err := s.invites.FindPending(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return AcceptResult{}, apperr.ErrInvalidOrExpiredCode
		}
		return AcceptResult{}, storeErr("find invitation", err)
	}

	now := s.now()
	if invite.Expired(now) {
		return AcceptResult{}, apperr.ErrCodeExpired
	}

	accepted, err := s.invites.MarkAccepted(ctx, invite.OwnerID, invite.InviteCode, redeemerID, now)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotPending) || errors.Is(err, repository.ErrInvitationNotFound) {
			return AcceptResult{}, apperr.ErrInvalidOrExpiredCode
		}
		return AcceptResult{}, storeErr("accept invitation", err)
	}

	grant := models.AccessGrant{
		OwnerID:     redeemerID,
		ClientID:    accepted.ClientID,
		AvatarID:    accepted.AvatarID,
		ClientName:  accepted.ClientName,
		AvatarName:  accepted.AvatarName,
		TherapistID: accepted.OwnerID,
		InviteCode:  accepted.InviteCode,
		GrantedAt:   now,
	}
	if err := s.grants.Put(ctx, grant); err != nil {
		// The code is spent at this point; the redeemer has to ask for a new invitation.
		return AcceptResult{}, storeErr("grant conversation access", err)
	}

	s.log.Info().
		Str("redeemer_id", redeemerID).
		Str("therapist_id", accepted.OwnerID).
		Str("client_id", accepted.ClientID).
		Msg("invitation accepted")

	return AcceptResult{
		ClientID:    accepted.ClientID,
		AvatarID:    accepted.AvatarID,
		ClientName:  accepted.ClientName,
		AvatarName:  accepted.AvatarName,
		TherapistID: accepted.OwnerID,
	}, nil
}

func (s *InvitationService) ListInvitations(ctx context.Context, therapistID string) ([]models.Invitation, error) {
	invites, err := s.invites.ListByOwner(ctx, therapistID)
	if err != nil {
		return nil, storeErr("list invitations", err)
	}
	return invites, nil
}

const auditPageSize = 200

// AuditStale reports up to limit PENDING invitations that expired before now, paging through
// every pending invitation until the limit is reached. It does not modify them.
func (s *InvitationService) AuditStale(ctx context.Context, now time.Time, limit int) ([]models.Invitation, error) {
	pageSize := auditPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	stale := make([]models.Invitation, 0)
	scanned := 0
	var after kvstore.Key
	for {
		page, next, err := s.invites.ListPending(ctx, after, pageSize)
		if err != nil {
			return nil, storeErr("list pending invitations", err)
		}
		scanned += len(page)
		for _, invite := range page {
			if !invite.Expired(now) {
				continue
			}
			stale = append(stale, invite)
			if limit > 0 && len(stale) == limit {
				break
			}
		}
		if next.PK == "" || (limit > 0 && len(stale) == limit) {
			break
		}
		after = next
	}

	s.log.Info().Int("scanned", scanned).Int("stale", len(stale)).Msg("invitation audit")
	return stale, nil
}
