package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/avalia/dashboard_backend/utils"
	"golang.org/x/sync/errgroup"
)

const (
	statsCacheKey      = "EntityStats"
	scientistKeyPrefix = "DS"
)

// StaleAfterMonths is how many calendar months without an update raise an alert.
const StaleAfterMonths = 3

type EntityStats struct {
	Active     int `json:"active"`
	Inactive   int `json:"inactive"`
	Strategic  int `json:"strategic"`
	Total      int `json:"total"`
	Scientists int `json:"scientists"`
	Alerts     int `json:"alerts"`
}

// ComputeEntityStats rolls use cases up per entity. The latest technicalMetrics snapshot
// of every use case is fetched in parallel before the single counting pass.
func (s *Service) ComputeEntityStats(ctx context.Context, useCases []*UseCase) (map[string]*EntityStats, error) {
	ctx, span := s.tracer.Start(ctx, "models.ComputeEntityStats")
	defer span.End()

	latest := make([]*MetricSnapshot, len(useCases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, useCase := range useCases {
		if useCase == nil || useCase.EntityID == "" || useCase.ID == "" {
			continue
		}
		i, entityID, useCaseID := i, useCase.EntityID, useCase.ID
		g.Go(func() error {
			snap, err := s.LatestMetricSnapshot(gctx, entityID, useCaseID, TechnicalMetrics)
			if err != nil {
				return fmt.Errorf("latest metrics of %s/%s: %w", entityID, useCaseID, err)
			}
			latest[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.aggregateStats(ctx, useCases, latest, s.now()), nil
}

// aggregateStats is the counting pass. latest[i] is the newest technical snapshot of
// useCases[i], or nil.
func (s *Service) aggregateStats(ctx context.Context, useCases []*UseCase, latest []*MetricSnapshot, now time.Time) map[string]*EntityStats {
	staleBefore := utils.MonthsBefore(now.UTC(), StaleAfterMonths)
	stats := map[string]*EntityStats{}
	scientists := map[string]map[string]struct{}{}

	for i, useCase := range useCases {
		if useCase == nil {
			continue
		}
		if useCase.EntityID == "" {
			s.log(ctx).WithField("useCaseId", useCase.ID).Warn("use case without entityId skipped in stats")
			continue
		}
		st, ok := stats[useCase.EntityID]
		if !ok {
			st = &EntityStats{}
			stats[useCase.EntityID] = st
			scientists[useCase.EntityID] = map[string]struct{}{}
		}
		st.Total++
		switch useCase.HighLevelStatus {
		case StatusActive:
			st.Active++
		case StatusInactive:
			st.Inactive++
		case StatusStrategic:
			st.Strategic++
		}
		if isStale(useCase.UpdatedAt, staleBefore) {
			st.Alerts++
		}
		if i < len(latest) && latest[i] != nil {
			for key, value := range latest[i].Values {
				if !strings.HasPrefix(key, scientistKeyPrefix) {
					continue
				}
				if name := metricText(value); name != "" {
					scientists[useCase.EntityID][name] = struct{}{}
				}
			}
		}
	}
	for entityID, names := range scientists {
		stats[entityID].Scientists = len(names)
	}
	return stats
}

// isStale reports updatedAt strictly before the threshold. Missing or unparsable
// timestamps never alert.
func isStale(updatedAt string, staleBefore time.Time) bool {
	if updatedAt == "" {
		return false
	}
	t, err := utils.ParseTimestamp(updatedAt)
	if err != nil {
		return false
	}
	return t.Before(staleBefore)
}

func metricText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// GetEntityStats computes stats over every use case, served from the cache while it is
// fresh.
func (s *Service) GetEntityStats(ctx context.Context) (map[string]*EntityStats, error) {
	if s.cache != nil {
		var cached map[string]*EntityStats
		ok, err := s.cache.Get(ctx, statsCacheKey, &cached)
		if err != nil {
			s.log(ctx).WithError(err).Warn("stats cache read failed")
		} else if ok && cached != nil {
			return cached, nil
		}
	}
	useCases, err := s.ListAllUseCases(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.ComputeEntityStats(ctx, useCases)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.cacheTTL); err != nil {
			s.log(ctx).WithError(err).Warn("stats cache write failed")
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.log(ctx).WithError(err).Warn("stats cache invalidation failed")
	}
}
