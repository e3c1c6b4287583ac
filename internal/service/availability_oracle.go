package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-session-service/internal/config"
	"live-session-service/internal/domain"
	"live-session-service/internal/repository"
	"live-session-service/internal/response"
)

// ErrInvalidWindow is returned for windows whose end is not after their start.
// Overnight windows are not supported.
var ErrInvalidWindow = errors.New("availability window must end after it starts")

// Reasons reported when a designer is not bookable.
const (
	ReasonOutsideHours     = "outside working hours"
	ReasonOffline          = "offline"
	ReasonUnavailableDate  = "unavailable on this date"
	ReasonUnavailableDay   = "unavailable on this day"
	ReasonMisconfiguration = "availability is misconfigured"
)

const dateLayout = "2006-01-02"

// ScheduleInput is everything Evaluate needs, already loaded.
type ScheduleInput struct {
	Settings domain.AvailabilitySettings
	Window   *domain.AvailabilityWindow
	Override *domain.SpecialDayOverride
	Online   bool
}

type Bookability struct {
	Available  bool
	Reason     string
	InSchedule bool
	IsOnline   bool
}

// Evaluate decides bookability at now. It has no side effects.
func Evaluate(in ScheduleInput, now time.Time) (Bookability, error) {
	result := Bookability{IsOnline: in.Online}

	loc, err := time.LoadLocation(in.Settings.Timezone)
	if err != nil {
		return result, fmt.Errorf("timezone %q: %w", in.Settings.Timezone, err)
	}
	local := now.In(loc)

	var start, end string
	switch {
	case in.Override != nil:
		o := in.Override
		if !o.IsAvailable {
			result.Reason = ReasonUnavailableDate
			if o.Reason != nil && *o.Reason != "" {
				result.Reason = *o.Reason
			}
			return result, nil
		}
		start, end = in.Settings.DefaultStartTime, in.Settings.DefaultEndTime
		if o.StartTime != nil && o.EndTime != nil {
			start, end = *o.StartTime, *o.EndTime
		}
	case in.Window != nil:
		if !in.Window.IsAvailable {
			result.Reason = ReasonUnavailableDay
			return result, nil
		}
		start, end = in.Window.StartTime, in.Window.EndTime
	default:
		if !in.Settings.DefaultAvailable {
			result.Reason = ReasonUnavailableDay
			return result, nil
		}
		start, end = in.Settings.DefaultStartTime, in.Settings.DefaultEndTime
	}

	startMin, endMin, err := parseWindow(start, end)
	if err != nil {
		return result, err
	}

	tod := local.Hour()*60 + local.Minute()
	lastStart := endMin - in.Settings.BufferTimeMinutes
	result.InSchedule = tod >= startMin && tod < lastStart

	switch {
	case !result.InSchedule:
		result.Reason = ReasonOutsideHours
	case !in.Online:
		result.Reason = ReasonOffline
	default:
		result.Available = true
	}
	return result, nil
}

func parseWindow(start, end string) (int, int, error) {
	startMin, err := domain.ParseTimeOfDay(start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err := domain.ParseTimeOfDay(end)
	if err != nil {
		return 0, 0, err
	}
	if endMin <= startMin {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidWindow, start, end)
	}
	return startMin, endMin, nil
}

// AvailabilityService loads schedules and answers IsBookable. It also owns
// the designer-facing schedule writes.
type AvailabilityService interface {
	IsBookable(ctx context.Context, designerID uuid.UUID, now time.Time) (Bookability, error)
	SettingsFor(ctx context.Context, designerID uuid.UUID) (*domain.AvailabilitySettings, error)
	GetSchedule(ctx context.Context, designerID uuid.UUID) (*domain.ScheduleResponse, error)
	SetWeeklyWindow(ctx context.Context, designerID uuid.UUID, req *domain.SetWeeklyWindowRequest) (*domain.AvailabilityWindow, error)
	SetOverride(ctx context.Context, designerID uuid.UUID, req *domain.SetOverrideRequest) (*domain.SpecialDayOverride, error)
	UpdateSettings(ctx context.Context, designerID uuid.UUID, req *domain.UpdateSettingsRequest) (*domain.AvailabilitySettings, error)
}

type availabilityService struct {
	repo     repository.AvailabilityRepository
	presence PresenceService
	defaults config.SessionConfig
	logger   *zap.Logger
}

func NewAvailabilityService(repo repository.AvailabilityRepository, presence PresenceService, defaults config.SessionConfig, logger *zap.Logger) AvailabilityService {
	return &availabilityService{
		repo:     repo,
		presence: presence,
		defaults: defaults,
		logger:   logger,
	}
}

func (s *availabilityService) defaultSettings(designerID uuid.UUID) *domain.AvailabilitySettings {
	return &domain.AvailabilitySettings{
		DesignerID:       designerID,
		DefaultStartTime: s.defaults.DefaultStartTime,
		DefaultEndTime:   s.defaults.DefaultEndTime,
		DefaultAvailable: true,
		Timezone:         s.defaults.DefaultTimezone,
	}
}

func (s *availabilityService) SettingsFor(ctx context.Context, designerID uuid.UUID) (*domain.AvailabilitySettings, error) {
	settings, err := s.repo.FindSettings(ctx, designerID)
	if err != nil {
		return nil, storeErr("load availability settings", err)
	}
	if settings == nil {
		return s.defaultSettings(designerID), nil
	}
	return settings, nil
}

func (s *availabilityService) IsBookable(ctx context.Context, designerID uuid.UUID, now time.Time) (Bookability, error) {
	settings, err := s.SettingsFor(ctx, designerID)
	if err != nil {
		return Bookability{}, err
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		s.logger.Warn("Invalid designer timezone, using UTC",
			zap.String("designer_id", designerID.String()),
			zap.String("timezone", settings.Timezone),
		)
		loc = time.UTC
		settings.Timezone = "UTC"
	}
	local := now.In(loc)

	override, err := s.repo.FindOverride(ctx, designerID, local.Format(dateLayout))
	if err != nil {
		return Bookability{}, storeErr("load availability override", err)
	}

	var window *domain.AvailabilityWindow
	if override == nil {
		window, err = s.repo.FindWindow(ctx, designerID, int(local.Weekday()))
		if err != nil {
			return Bookability{}, storeErr("load availability window", err)
		}
	}

	online, err := s.presence.IsOnline(ctx, designerID)
	if err != nil {
		return Bookability{}, err
	}

	result, err := Evaluate(ScheduleInput{
		Settings: *settings,
		Window:   window,
		Override: override,
		Online:   online,
	}, now)
	if err != nil {
		s.logger.Warn("Stored availability is invalid",
			zap.String("designer_id", designerID.String()),
			zap.Error(err),
		)
		return Bookability{IsOnline: online, Reason: ReasonMisconfiguration}, nil
	}
	return result, nil
}

func (s *availabilityService) GetSchedule(ctx context.Context, designerID uuid.UUID) (*domain.ScheduleResponse, error) {
	settings, err := s.SettingsFor(ctx, designerID)
	if err != nil {
		return nil, err
	}
	windows, err := s.repo.FindWindows(ctx, designerID)
	if err != nil {
		return nil, storeErr("load availability windows", err)
	}
	overrides, err := s.repo.FindOverrides(ctx, designerID)
	if err != nil {
		return nil, storeErr("load availability overrides", err)
	}
	return &domain.ScheduleResponse{Settings: *settings, Windows: windows, Overrides: overrides}, nil
}

func (s *availabilityService) SetWeeklyWindow(ctx context.Context, designerID uuid.UUID, req *domain.SetWeeklyWindowRequest) (*domain.AvailabilityWindow, error) {
	if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		return nil, response.NewValidationError("Invalid day of week", "dayOfWeek must be between 0 (Sunday) and 6")
	}
	if _, _, err := parseWindow(req.StartTime, req.EndTime); err != nil {
		return nil, response.NewValidationError("Invalid availability window", err.Error())
	}

	window, err := s.repo.UpsertWindow(ctx, &domain.AvailabilityWindow{
		DesignerID:  designerID,
		DayOfWeek:   *req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		return nil, storeErr("save availability window", err)
	}

	s.logger.Info("Weekly window updated",
		zap.String("designer_id", designerID.String()),
		zap.Int("day_of_week", window.DayOfWeek),
	)
	return window, nil
}

func (s *availabilityService) SetOverride(ctx context.Context, designerID uuid.UUID, req *domain.SetOverrideRequest) (*domain.SpecialDayOverride, error) {
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, response.NewValidationError("Invalid date", "date must be YYYY-MM-DD")
	}
	if (req.StartTime == nil) != (req.EndTime == nil) {
		return nil, response.NewValidationError("Invalid override", "startTime and endTime must be given together")
	}
	if req.StartTime != nil {
		if _, _, err := parseWindow(*req.StartTime, *req.EndTime); err != nil {
			return nil, response.NewValidationError("Invalid override window", err.Error())
		}
	}

	override, err := s.repo.UpsertOverride(ctx, &domain.SpecialDayOverride{
		DesignerID:  designerID,
		Date:        req.Date,
		IsAvailable: req.IsAvailable,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, storeErr("save availability override", err)
	}
	return override, nil
}

func (s *availabilityService) UpdateSettings(ctx context.Context, designerID uuid.UUID, req *domain.UpdateSettingsRequest) (*domain.AvailabilitySettings, error) {
	settings, err := s.SettingsFor(ctx, designerID)
	if err != nil {
		return nil, err
	}

	if req.AutoAcceptBookings != nil {
		settings.AutoAcceptBookings = *req.AutoAcceptBookings
	}
	if req.BufferTimeMinutes != nil {
		settings.BufferTimeMinutes = *req.BufferTimeMinutes
	}
	if req.DefaultStartTime != nil {
		settings.DefaultStartTime = *req.DefaultStartTime
	}
	if req.DefaultEndTime != nil {
		settings.DefaultEndTime = *req.DefaultEndTime
	}
	if req.DefaultAvailable != nil {
		settings.DefaultAvailable = *req.DefaultAvailable
	}
	if req.Timezone != nil {
		settings.Timezone = *req.Timezone
	}
	if req.MaxSessionMinutes != nil {
		settings.MaxSessionMinutes = *req.MaxSessionMinutes
	}

	if settings.BufferTimeMinutes < 0 || settings.MaxSessionMinutes < 0 {
		return nil, response.NewValidationError("Invalid settings", "minutes must not be negative")
	}
	if _, _, err := parseWindow(settings.DefaultStartTime, settings.DefaultEndTime); err != nil {
		return nil, response.NewValidationError("Invalid default working hours", err.Error())
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return nil, response.NewValidationError("Invalid timezone", settings.Timezone)
	}

	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return nil, storeErr("save availability settings", err)
	}
	return settings, nil
}
