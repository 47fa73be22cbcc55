// README: Mode policy: turns a detour measurement into matched, rejected or ignored.
package dispatch

import (
	"context"
	"fmt"

	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/types"
)

// decide runs the policy for mode. Mapping failures come back as errors;
// an infeasible merge is a normal rejection.
func decide(ctx context.Context, ev *detour.Evaluator, mode Mode, cfg ModeConfig, driver detour.DriverState, cand detour.OrderCandidate) (*Decision, error) {
	switch mode {
	case ModePaused:
		return ignored(ReasonPaused, "dispatch is paused"), nil
	case ModePlan:
		return ignored(ReasonPlanMode, "plan mode searches along planned trips, single orders are not evaluated"), nil
	case ModeThreshold:
		sc, err := ev.Prepare(ctx, driver, cand)
		if err != nil {
			return nil, err
		}
		res, err := sc.Detour(ctx)
		if err != nil {
			return nil, err
		}
		return thresholdDecision(cfg, cand, res), nil
	case ModeLocality:
		sc, err := ev.Prepare(ctx, driver, cand)
		if err != nil {
			return nil, err
		}
		return localityDecision(ctx, sc, cfg, cand)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", ErrIllegalModeTransition, mode)
}

// thresholdDecision accepts detours up to the max bound. Detours above the
// easy bound must also clear the profit floor.
func thresholdDecision(cfg ModeConfig, cand detour.OrderCandidate, res *detour.Result) *Decision {
	if res.Infeasible {
		return rejected(ReasonInfeasible, "cannot plan a valid merged route")
	}
	maxSecs := cfg.Mode2DetourMax * 60
	easySecs := min(cfg.Mode2EasyDetour, cfg.Mode2DetourMax) * 60
	extra := float64(res.ExtraSeconds)
	mins := res.ExtraMinutes()

	if extra > maxSecs {
		return rejected(ReasonTooFar, fmt.Sprintf("detour too far, adds %.1f minutes", mins))
	}
	floor := types.FromMajor(cfg.Mode2HighProfitThreshold)
	if extra > easySecs && cand.Price.Less(floor) {
		return rejected(ReasonBelowProfit, fmt.Sprintf("price %s below profit floor %s for a %.1f minute detour", cand.Price, floor, mins))
	}
	return matched(cand, res, "on the way, push sent")
}

// localityDecision matches orders near the next drop-off. Without pending
// deliveries it measures from the current location and falls back to the
// threshold rules.
func localityDecision(ctx context.Context, sc *detour.Scenario, cfg ModeConfig, cand detour.OrderCandidate) (*Decision, error) {
	radius := cfg.Mode3RadiusMinutes * 60

	h, ok := sc.NextDrop()
	if !ok {
		if secs := sc.SecondsToPickup(0); float64(secs) > radius {
			return rejected(ReasonOutsideRadius, fmt.Sprintf("pickup is %.1f minutes away, outside the %.0f minute radius", detour.Minutes(secs), cfg.Mode3RadiusMinutes)), nil
		}
		res, err := sc.Detour(ctx)
		if err != nil {
			return nil, err
		}
		return thresholdDecision(cfg, cand, res), nil
	}

	if secs := sc.SecondsToPickup(h.Node); float64(secs) > radius {
		return rejected(ReasonOutsideRadius, fmt.Sprintf("pickup is %.1f minutes from the next drop-off %s, outside the %.0f minute radius", detour.Minutes(secs), h.Address, cfg.Mode3RadiusMinutes)), nil
	}
	res, err := sc.DetourFrom(ctx, h)
	if err != nil {
		return nil, err
	}
	if res.Infeasible {
		return rejected(ReasonInfeasible, "cannot plan a valid route after the next drop-off"), nil
	}
	if float64(res.ExtraSeconds) > cfg.Mode3DetourMax*60 {
		return rejected(ReasonTooFar, fmt.Sprintf("detour after the next drop-off too far, adds %.1f minutes", res.ExtraMinutes())), nil
	}
	d := matched(cand, res, "near the next drop-off, push sent")
	eta := detour.Minutes(h.Seconds)
	d.NextDropAddress = h.Address
	d.ETAMinutesToNextDrop = &eta
	return d, nil
}

func matched(cand detour.OrderCandidate, res *detour.Result, msg string) *Decision {
	mins := res.ExtraMinutes()
	return &Decision{
		Status:        StatusMatched,
		Message:       msg,
		DetourMinutes: &mins,
		ExtraSeconds:  res.ExtraSeconds,
		Profit:        cand.Price.String(),
		RoutePreview:  res.Route,
	}
}
