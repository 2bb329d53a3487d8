// Package service owns configuration writes: validation at the edge, the
// optimistic concurrency contract, and soft deletion. Once a configuration is
// accepted here, the scheduler and executor can trust it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/pattern"
	"filescout/internal/schedule"
)

// ErrValidation wraps all write-time validation failures so callers can
// distinguish bad input from store trouble.
var ErrValidation = errors.New("invalid configuration")

// ConfigurationStore is the repository surface the service writes through.
type ConfigurationStore interface {
	Create(ctx context.Context, cfg *entity.Configuration) (bool, error)
	Get(ctx context.Context, tenantID, id string) (*entity.Configuration, error)
	Update(ctx context.Context, cfg *entity.Configuration) error
	Deactivate(ctx context.Context, tenantID, id string, version int64) error
}

// ConfigurationInput is the caller-supplied shape of a configuration write.
type ConfigurationInput struct {
	ID                  string
	TenantID            string
	Protocol            string
	ProtocolSettings    entity.ProtocolSettings
	PathPattern         string
	NamePattern         string
	CronExpression      string
	Timezone            string
	NotificationTargets []entity.NotificationTarget
}

type ConfigurationService struct {
	store   ConfigurationStore
	logger  observability.Logger
	metrics observability.Metrics
}

func NewConfigurationService(store ConfigurationStore, logger observability.Logger, metrics observability.Metrics) *ConfigurationService {
	return &ConfigurationService{store: store, logger: logger, metrics: metrics}
}

// Create validates and stores a new configuration. Supplying an ID makes the
// call idempotent: replaying it returns the stored configuration without a
// second insert.
func (s *ConfigurationService) Create(ctx context.Context, in ConfigurationInput) (*entity.Configuration, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantId is required", ErrValidation)
	}

	cfg := entity.NewConfiguration(in.ID, in.TenantID)
	if err := s.apply(cfg, in); err != nil {
		s.metrics.IncrementCounter("service.configurations.validation_failures", nil)
		return nil, err
	}

	inserted, err := s.store.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.logger.Info("configuration already exists, returning stored state",
			"tenant_id", cfg.TenantID, "configuration_id", cfg.ID)
		return s.store.Get(ctx, cfg.TenantID, cfg.ID)
	}

	s.logger.Info("configuration created",
		"tenant_id", cfg.TenantID,
		"configuration_id", cfg.ID,
		"protocol", string(cfg.Protocol))
	s.metrics.IncrementCounter("service.configurations.created",
		map[string]string{"protocol": string(cfg.Protocol)})
	return cfg, nil
}

// Update replaces a configuration. The input's version token must match the
// stored row or the write is rejected with ErrVersionConflict.
func (s *ConfigurationService) Update(ctx context.Context, in ConfigurationInput, version int64) (*entity.Configuration, error) {
	current, err := s.store.Get(ctx, in.TenantID, in.ID)
	if err != nil {
		return nil, err
	}

	cfg := *current
	cfg.Version = version
	if err := s.apply(&cfg, in); err != nil {
		s.metrics.IncrementCounter("service.configurations.validation_failures", nil)
		return nil, err
	}

	if err := s.store.Update(ctx, &cfg); err != nil {
		return nil, err
	}

	s.logger.Info("configuration updated",
		"tenant_id", cfg.TenantID,
		"configuration_id", cfg.ID,
		"version", cfg.Version)
	s.metrics.IncrementCounter("service.configurations.updated", nil)
	return &cfg, nil
}

// Deactivate soft-deletes a configuration under the version token. The row
// and its execution history remain.
func (s *ConfigurationService) Deactivate(ctx context.Context, tenantID, id string, version int64) error {
	if err := s.store.Deactivate(ctx, tenantID, id, version); err != nil {
		return err
	}
	s.logger.Info("configuration deactivated",
		"tenant_id", tenantID, "configuration_id", id)
	s.metrics.IncrementCounter("service.configurations.deactivated", nil)
	return nil
}

// Get returns one configuration, tenant scoped.
func (s *ConfigurationService) Get(ctx context.Context, tenantID, id string) (*entity.Configuration, error) {
	return s.store.Get(ctx, tenantID, id)
}

// apply validates the input and copies it onto cfg, computing the first
// scheduled run.
func (s *ConfigurationService) apply(cfg *entity.Configuration, in ConfigurationInput) error {
	proto, err := entity.ParseProtocol(in.Protocol)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validateSettings(proto, in.ProtocolSettings); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	timezone := in.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if err := schedule.Validate(in.CronExpression, timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := validateTargets(in.NotificationTargets); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validatePatterns(proto, in.ProtocolSettings, in.PathPattern, in.NamePattern); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	cfg.Protocol = proto
	cfg.ProtocolSettings = in.ProtocolSettings
	cfg.PathPattern = in.PathPattern
	cfg.NamePattern = in.NamePattern
	cfg.CronExpression = in.CronExpression
	cfg.Timezone = timezone
	cfg.NotificationTargets = in.NotificationTargets
	cfg.IsActive = true

	if next, err := schedule.NextDue(cfg.CronExpression, cfg.Timezone, time.Now()); err == nil {
		cfg.NextScheduledRun = &next
	}
	return nil
}

func validateSettings(proto entity.Protocol, s entity.ProtocolSettings) error {
	switch proto {
	case entity.ProtocolFTP:
		if s.Host == "" {
			return errors.New("ftp settings require host")
		}
		if s.Username != "" && s.PasswordSecretRef == "" {
			return errors.New("ftp username requires passwordSecretRef")
		}
	case entity.ProtocolHTTPS:
		if s.BaseURL == "" {
			return errors.New("https settings require baseUrl")
		}
		if !strings.HasPrefix(s.BaseURL, "https://") && !strings.HasPrefix(s.BaseURL, "http://") {
			return fmt.Errorf("baseUrl %q must be an http(s) URL", s.BaseURL)
		}
	case entity.ProtocolObjectStorage:
		if s.Bucket == "" {
			return errors.New("object storage settings require bucket")
		}
		if s.Region == "" && s.Endpoint == "" {
			return errors.New("object storage settings require region or endpoint")
		}
	}
	return nil
}

func validateTargets(targets []entity.NotificationTarget) error {
	if len(targets) == 0 {
		return errors.New("at least one notification target is required")
	}
	for i, t := range targets {
		if t.Destination == "" {
			return fmt.Errorf("notification target %d: destination is required", i)
		}
		hasEvent := t.EventType != ""
		hasCommand := t.CommandType != ""
		if hasEvent == hasCommand {
			return fmt.Errorf("notification target %d: exactly one of eventType or commandType must be set", i)
		}
	}
	return nil
}

// validatePatterns rejects date tokens outside path and name segments. For
// HTTPS the base URL and path pattern are validated as the joined URL the
// adapter will fetch.
func validatePatterns(proto entity.Protocol, s entity.ProtocolSettings, pathPattern, namePattern string) error {
	if err := pattern.ValidatePlacement(pathPattern); err != nil {
		return err
	}
	if err := pattern.ValidatePlacement(namePattern); err != nil {
		return err
	}
	if proto == entity.ProtocolHTTPS {
		joined := strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(pathPattern, "/")
		if err := pattern.ValidatePlacement(joined); err != nil {
			return err
		}
	}
	return nil
}
