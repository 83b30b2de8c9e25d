package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// MatchAuthorizedGroup maps a client-declared model string onto one of the
// API key's authorized group names. Rules apply in order, first match wins:
// exact name, a path-suffix match in either direction ("vendor/model"
// matches "model" and vice versa), then the vendor prefix rewrites
// "claude-…" → "anthropic/…" and "gpt-…" → "openai/…".
func MatchAuthorizedGroup(model string, groups []models.Group) (string, bool) {
	for _, g := range groups {
		if g.Name == model {
			return g.Name, true
		}
	}
	for _, g := range groups {
		if strings.HasSuffix(g.Name, "/"+model) || strings.HasSuffix(model, "/"+g.Name) {
			return g.Name, true
		}
	}
	if rest, ok := strings.CutPrefix(model, "claude-"); ok {
		rewritten := "anthropic/" + rest
		for _, g := range groups {
			if g.Name == rewritten {
				return g.Name, true
			}
		}
	}
	if rest, ok := strings.CutPrefix(model, "gpt-"); ok {
		rewritten := "openai/" + rest
		for _, g := range groups {
			if g.Name == rewritten {
				return g.Name, true
			}
		}
	}
	return "", false
}

// Selector picks the next provider to attempt for a group, honoring
// priority tiers, load, and the exclusion set built up by the retry loop.
type Selector struct {
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	callLogs    repository.CallLogRepository
	settings    repository.SettingsRepository

	healthFilter bool
	logger       *zap.Logger
	now          func() time.Time
}

// NewSelector creates a new Selector. With healthFilter enabled, providers
// that accumulated too many recent failure logs are passed over while a
// healthier candidate exists.
func NewSelector(
	groups repository.GroupRepository,
	memberships repository.MembershipRepository,
	callLogs repository.CallLogRepository,
	settings repository.SettingsRepository,
	healthFilter bool,
	logger *zap.Logger,
) *Selector {
	return &Selector{
		groups:       groups,
		memberships:  memberships,
		callLogs:     callLogs,
		settings:     settings,
		healthFilter: healthFilter,
		logger:       logger,
		now:          time.Now,
	}
}

// Select returns the best candidate for the group, or nil when the group is
// unknown or every member is excluded or inactive. Candidates arrive from
// the store ordered by priority tier, then live calls, then provider id, so
// the head of the list is the answer unless the health filter skips it.
//
// Selection is a pure read of the current snapshot: concurrent requests may
// pick the same provider, the live-call counter is advisory.
func (s *Selector) Select(ctx context.Context, groupName string, excluded []int64) (*repository.Candidate, error) {
	group, err := s.groups.FindByName(ctx, groupName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve group: %w", err)
	}
	if group == nil {
		return nil, nil
	}

	candidates, err := s.memberships.CandidatesForGroup(ctx, group.ID, excluded)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if !s.healthFilter {
		return &candidates[0], nil
	}

	threshold, err := s.settings.GetInt(ctx, models.SettingFailoverThresholdCount, 2)
	if err != nil {
		return nil, err
	}
	periodMinutes, err := s.settings.GetInt(ctx, models.SettingFailoverThresholdPeriod, 5)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-time.Duration(periodMinutes) * time.Minute)

	for i := range candidates {
		failures, err := s.callLogs.CountRecentFailures(ctx, candidates[i].Provider.ID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to count failures: %w", err)
		}
		if failures < threshold {
			return &candidates[i], nil
		}
		s.logger.Debug("skipping provider over failure threshold",
			zap.Int64("provider_id", candidates[i].Provider.ID),
			zap.Int("failures", failures),
			zap.Int("threshold", threshold))
	}

	// Every candidate is over the threshold. Attempt the least-loaded one
	// anyway rather than failing the request outright.
	s.logger.Warn("all candidates over failure threshold, relaxing filter",
		zap.String("group", groupName))
	return &candidates[0], nil
}
