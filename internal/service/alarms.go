package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/metrics"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// AlarmEvaluator drives alarm episodes from processed readings. Every
// numeric reading is checked against the active rules of its register; a
// violation opens an episode, a return to normal closes it. Acknowledgement
// is an operator action layered over the active/cleared axis.
type AlarmEvaluator struct {
	store     store.Store
	publisher domain.EventPublisher
	logger    zerolog.Logger
	metrics   *metrics.Registry
	now       func() time.Time
}

// NewAlarmEvaluator creates a new alarm evaluator.
func NewAlarmEvaluator(st store.Store, publisher domain.EventPublisher, logger zerolog.Logger, metricsReg *metrics.Registry) *AlarmEvaluator {
	return &AlarmEvaluator{
		store:     st,
		publisher: publisher,
		logger:    logger.With().Str("component", "alarm-evaluator").Logger(),
		metrics:   metricsReg,
		now:       time.Now,
	}
}

// Evaluate checks one processed numeric value against every active rule of
// its register and advances episodes accordingly. Rule evaluation failures
// are logged and do not stop the remaining rules.
func (a *AlarmEvaluator) Evaluate(ctx context.Context, registerID uint, value float64) {
	rules, err := a.store.ActiveAlarmRules(ctx, registerID)
	if err != nil {
		a.logger.Error().Err(err).Uint("register_id", registerID).Msg("Failed to load alarm rules")
		return
	}

	for i := range rules {
		if err := a.evaluateRule(ctx, &rules[i], value); err != nil {
			a.logger.Error().
				Err(err).
				Uint("rule_id", rules[i].ID).
				Str("rule", rules[i].Name).
				Msg("Alarm rule evaluation failed")
		}
	}
}

func (a *AlarmEvaluator) evaluateRule(ctx context.Context, rule *domain.AlarmRule, value float64) error {
	open, err := a.store.OpenEpisode(ctx, rule.ID)
	if err != nil {
		return err
	}

	violated := rule.Violated(value)

	switch {
	case violated && open == nil:
		ep := &domain.AlarmEpisode{
			RuleID:    rule.ID,
			StartTime: a.now(),
			Status:    domain.EpisodeActiveUnack,
		}
		if err := a.store.CreateEpisode(ctx, ep); err != nil {
			return err
		}
		if a.metrics != nil {
			a.metrics.RecordAlarmRaised(string(rule.Severity))
		}
		a.logger.Warn().
			Str("rule", rule.Name).
			Str("severity", string(rule.Severity)).
			Float64("value", value).
			Float64("threshold", rule.Threshold).
			Msg("Alarm raised")
		a.publishEpisode(ep, rule, false)

	case !violated && open != nil:
		// The cleared episode lands in CLEARED_UNACK regardless of a prior
		// acknowledgement: operators confirm the clear separately.
		end := a.now()
		open.EndTime = &end
		open.Status = domain.EpisodeClearedUnack
		if err := a.store.UpdateEpisode(ctx, open); err != nil {
			return err
		}
		if a.metrics != nil {
			a.metrics.RecordAlarmCleared(string(rule.Severity))
		}
		a.logger.Info().
			Str("rule", rule.Name).
			Float64("value", value).
			Msg("Alarm cleared")
		a.publishEpisode(open, rule, true)
	}

	return nil
}

// Acknowledge records an operator acknowledgement on an episode. Only
// unacknowledged episodes accept it; anything else is rejected with
// ErrInvalidAcknowledgment.
func (a *AlarmEvaluator) Acknowledge(ctx context.Context, episodeID uint, by string) (*domain.AlarmEpisode, error) {
	ep, err := a.store.EpisodeByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	switch ep.Status {
	case domain.EpisodeActiveUnack:
		ep.Status = domain.EpisodeActiveAck
	case domain.EpisodeClearedUnack:
		ep.Status = domain.EpisodeClearedAck
	default:
		return nil, fmt.Errorf("%w: episode %d is %s", domain.ErrInvalidAcknowledgment, ep.ID, ep.Status)
	}

	ackTime := a.now()
	ep.AcknowledgedBy = by
	ep.AcknowledgedTime = &ackTime

	if err := a.store.UpdateEpisode(ctx, ep); err != nil {
		return nil, err
	}

	a.logger.Info().
		Uint("episode_id", ep.ID).
		Str("acknowledged_by", by).
		Str("status", string(ep.Status)).
		Msg("Alarm acknowledged")
	a.publishEpisode(ep, ep.Rule, ep.Status == domain.EpisodeClearedAck)
	return ep, nil
}

func (a *AlarmEvaluator) publishEpisode(ep *domain.AlarmEpisode, rule *domain.AlarmRule, cleared bool) {
	ev := domain.AlarmUpdateEvent{
		EpisodeID: ep.ID,
		Status:    ep.Status,
		Cleared:   cleared,
	}
	if rule != nil {
		ev.RuleName = rule.Name
		ev.Severity = rule.Severity
	}
	if err := a.publisher.PublishAlarm(ev); err != nil {
		a.logger.Warn().Err(err).Uint("episode_id", ep.ID).Msg("Failed to publish alarm update")
	}
}
