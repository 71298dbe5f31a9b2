package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg/config"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceUseCase heartbeat, online state and the user directory
type PresenceUseCase struct {
	profileRepo repository.ProfileRepository
	roomRepo    repository.RoomRepository
	gate        repository.HeartbeatGate
	policy      config.Policy
	now         func() time.Time
}

// NewPresenceUseCase init presence use case
func NewPresenceUseCase(
	profileRepo repository.ProfileRepository,
	roomRepo repository.RoomRepository,
	gate repository.HeartbeatGate,
	policy config.Policy,
) *PresenceUseCase {
	return &PresenceUseCase{
		profileRepo: profileRepo,
		roomRepo:    roomRepo,
		gate:        gate,
		policy:      policy.WithDefaults(),
		now:         time.Now,
	}
}

// Heartbeat set last_seen = now at most once per interval; false when throttled
func (uc *PresenceUseCase) Heartbeat(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.policy.RequestTimeout)
	defer cancel()

	now := uc.now().UTC()
	if uc.gate != nil {
		ok, err := uc.gate.Acquire(ctx, userID, now, uc.policy.HeartbeatInterval)
		if err != nil {
			// redis 不可用時直接寫入
			logger.Log.Warn("heartbeat gate unavailable", zap.String("user_id", userID), zap.Error(err))
		} else if !ok {
			heartbeats.WithLabelValues("throttled").Inc()
			return false, nil
		}
	}

	if err := uc.profileRepo.UpdateLastSeen(ctx, userID, now); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errprocess.Transient("heartbeat timed out", ctx.Err())
		}
		heartbeats.WithLabelValues("error").Inc()
		return false, err
	}
	heartbeats.WithLabelValues("written").Inc()
	return true, nil
}

// IsOnline now - lastSeen < online window
func (uc *PresenceUseCase) IsOnline(lastSeen *time.Time) bool {
	return domain.IsOnline(lastSeen, uc.now(), uc.policy.OnlineWindow)
}

// ListProfiles user directory ordered by username, requester excluded;
// excludeRoomID also drops that room's current members
func (uc *PresenceUseCase) ListProfiles(ctx context.Context, requesterID, search, excludeRoomID string) ([]domain.ProfileView, error) {
	exclude := []string{requesterID}
	if excludeRoomID != "" {
		members, err := uc.roomRepo.ListMembers(ctx, excludeRoomID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			exclude = append(exclude, m.UserID)
		}
	}

	profiles, err := uc.profileRepo.List(ctx, domain.ProfileQuery{ExcludeIDs: exclude, Search: search})
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, domain.ProfileView{Profile: p, Online: uc.IsOnline(p.LastSeen)})
	}
	return views, nil
}

// GetProfile one profile with presence
func (uc *PresenceUseCase) GetProfile(ctx context.Context, userID string) (*domain.ProfileView, error) {
	p, err := uc.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.ProfileView{Profile: *p, Online: uc.IsOnline(p.LastSeen)}, nil
}

// UpdateProfile change username and/or avatar url, username cannot be blank
func (uc *PresenceUseCase) UpdateProfile(ctx context.Context, userID string, username, avatarURL *string) (*domain.Profile, error) {
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		if trimmed == "" {
			return nil, errprocess.Validation("username cannot be empty")
		}
		username = &trimmed
	}
	if username == nil && avatarURL == nil {
		return nil, errprocess.Validation("nothing to update")
	}
	return uc.profileRepo.UpdateProfile(ctx, userID, username, avatarURL)
}
