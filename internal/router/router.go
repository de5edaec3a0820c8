package router

import (
	"sort"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/pool"
)

// Options bound the router's selection behavior.
type Options struct {
	MinMatchScore      float64 // candidates below this are discarded
	MultiTeamThreshold float64 // a top team at or above this is routed alone
	MaxTeams           int
	MaxAgentsPerTeam   int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinMatchScore:      0.3,
		MultiTeamThreshold: 0.7,
		MaxTeams:           3,
		MaxAgentsPerTeam:   2,
	}
}

// Route is a (team, agent) pair selected for a task.
type Route struct {
	Team  *pool.Team
	Agent *pool.Agent
}

// Router ranks teams and agents for a keyword set using a bounded,
// reproducible score. For a fixed pool and keyword list the returned route
// list is identical across calls.
type Router struct {
	pool   *pool.Pool
	opts   Options
	logger *zap.Logger
}

// New creates a Router over the given pool.
func New(p *pool.Pool, opts Options, logger *zap.Logger) *Router {
	if opts.MaxTeams <= 0 {
		opts.MaxTeams = 3
	}
	if opts.MaxAgentsPerTeam <= 0 {
		opts.MaxAgentsPerTeam = 2
	}
	return &Router{pool: p, opts: opts, logger: logger}
}

// RoutePrompt extracts keywords from a free-form prompt and routes them.
func (r *Router) RoutePrompt(prompt string) []Route {
	return r.Route(ExtractKeywords(prompt))
}

type teamScore struct {
	team  *pool.Team
	score float64
}

// Route selects up to MaxTeams teams and up to MaxAgentsPerTeam agents per
// team for the given keywords. An empty slice means no team matched.
func (r *Router) Route(keywords []string) []Route {
	teams := r.pool.Teams()

	scores := make([]teamScore, 0, len(teams))
	for _, t := range teams {
		if s := MatchScore(keywords, t.Keywords); s >= r.opts.MinMatchScore {
			scores = append(scores, teamScore{team: t, score: s})
		}
	}
	if len(scores) == 0 {
		r.logger.Info("no team matched", zap.Strings("keywords", keywords))
		return nil
	}

	// Stable sort: ties keep fixed table order.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := scores
	if scores[0].score >= r.opts.MultiTeamThreshold {
		selected = scores[:1]
	} else if len(selected) > r.opts.MaxTeams {
		selected = selected[:r.opts.MaxTeams]
	}

	var routes []Route
	for _, ts := range selected {
		agents := r.selectAgents(ts.team, keywords)
		if len(agents) == 0 {
			r.logger.Warn("team has no available agents, skipping",
				zap.String("team", ts.team.ID))
			continue
		}
		for _, a := range agents {
			routes = append(routes, Route{Team: ts.team, Agent: a})
		}
		r.logger.Debug("team selected",
			zap.String("team", ts.team.ID),
			zap.Float64("score", ts.score),
			zap.Int("agents", len(agents)))
	}
	return routes
}

type agentScore struct {
	agent *pool.Agent
	score float64
}

// selectAgents picks the team's top available agents above the threshold, or
// falls back to the first available agent when none score high enough.
// Availability is strict: busy agents are never selected, so one task cannot
// pile onto an agent another task holds. The availability read goes through
// the pool lock so it cannot race the dispatcher's state writes.
func (r *Router) selectAgents(team *pool.Team, keywords []string) []*pool.Agent {
	available := r.pool.AvailableAgents(team.ID)
	if len(available) == 0 {
		return nil
	}

	scores := make([]agentScore, 0, len(available))
	for _, a := range available {
		if s := MatchScore(keywords, a.Keywords); s >= r.opts.MinMatchScore {
			scores = append(scores, agentScore{agent: a, score: s})
		}
	}
	if len(scores) == 0 {
		return available[:1]
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if len(scores) > r.opts.MaxAgentsPerTeam {
		scores = scores[:r.opts.MaxAgentsPerTeam]
	}

	out := make([]*pool.Agent, len(scores))
	for i, s := range scores {
		out[i] = s.agent
	}
	return out
}
