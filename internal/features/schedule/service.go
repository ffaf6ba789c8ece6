package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sync_feature "go-datasync/internal/features/sync"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleService triggers RunSync for profiles carrying a cron schedule
type ScheduleService interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	// SetSchedule stores a standard 5 field cron expression on a profile; "" clears it
	SetSchedule(ctx context.Context, profileID, schedule string) (*models.SyncProfile, error)
	NextRun(profileID string) (time.Time, bool)
	RegisterProfile(profile *models.SyncProfile) error
	UnregisterProfile(profileID string)
}

type ScheduleServiceImpl struct {
	profiles    sync_feature.ProfileRepository
	syncService sync_feature.SyncService
	logger      *zap.Logger

	scheduler  *cron.Cron
	jobEntries map[string]cron.EntryID
	mu         sync.RWMutex
}

func NewScheduleService(
	profiles sync_feature.ProfileRepository,
	syncService sync_feature.SyncService,
	logger *zap.Logger,
) ScheduleService {
	return &ScheduleServiceImpl{
		profiles:    profiles,
		syncService: syncService,
		logger:      logger,
		jobEntries:  make(map[string]cron.EntryID),
	}
}

func (s *ScheduleServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.logger.Info("Initializing sync scheduler")
	s.mu.Lock()
	s.scheduler = cron.New()
	s.mu.Unlock()

	profiles, err := s.profiles.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled profiles: %w", err)
	}

	for i := range profiles {
		if err := s.RegisterProfile(&profiles[i]); err != nil {
			s.logger.Error("Failed to register scheduled profile",
				zap.String("profile_id", profiles[i].ID.Hex()),
				zap.String("schedule", profiles[i].Schedule),
				zap.Error(err))
		}
	}

	s.scheduler.Start()
	return nil
}

func (s *ScheduleServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *ScheduleServiceImpl) SetSchedule(ctx context.Context, profileID, schedule string) (*models.SyncProfile, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, syncerr.Configuration("invalid cron expression %q: %v", schedule, err)
		}
	}

	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profileID, map[string]interface{}{"schedule": schedule}); err != nil {
		return nil, err
	}
	profile.Schedule = schedule

	s.UnregisterProfile(profileID)
	if schedule != "" && s.scheduler != nil {
		if err := s.RegisterProfile(profile); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Profile schedule updated",
		zap.String("profile_id", profileID),
		zap.String("schedule", schedule))
	return profile, nil
}

func (s *ScheduleServiceImpl) NextRun(profileID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, exists := s.jobEntries[profileID]
	if !exists || s.scheduler == nil {
		return time.Time{}, false
	}
	return s.scheduler.Entry(entryID).Next, true
}

func (s *ScheduleServiceImpl) RegisterProfile(profile *models.SyncProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	profileID := profile.ID.Hex()
	if entryID, exists := s.jobEntries[profileID]; exists {
		s.scheduler.Remove(entryID)
	}

	entryID, err := s.scheduler.AddFunc(profile.Schedule, func() {
		s.runScheduled(context.Background(), profileID)
	})
	if err != nil {
		return fmt.Errorf("failed to add profile to scheduler: %w", err)
	}

	s.jobEntries[profileID] = entryID
	return nil
}

func (s *ScheduleServiceImpl) UnregisterProfile(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobEntries[profileID]; exists {
		s.scheduler.Remove(entryID)
		delete(s.jobEntries, profileID)
	}
}

// runScheduled re-reads the profile so a schedule cleared since registration
// is not run, then runs one sync. A run already in progress is skipped.
func (s *ScheduleServiceImpl) runScheduled(ctx context.Context, profileID string) {
	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil || profile.Schedule == "" {
		return
	}

	run, err := s.syncService.RunSync(ctx, profileID)
	switch {
	case errors.Is(err, syncerr.ErrRunInProgress):
		s.logger.Info("Scheduled sync skipped, profile is already running", zap.String("profile_id", profileID))
	case err != nil:
		s.logger.Warn("Scheduled sync failed", zap.String("profile_id", profileID), zap.Error(err))
	default:
		s.logger.Info("Scheduled sync finished",
			zap.String("profile_id", profileID),
			zap.String("run_id", run.ID.Hex()),
			zap.Int("rows_added", run.RowsAdded))
	}
}
