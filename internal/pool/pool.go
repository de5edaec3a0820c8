package pool

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAgentNotFound is returned when an agent id is not registered.
var ErrAgentNotFound = fmt.Errorf("agent not found")

// teamTable is the fixed set of teams agents may declare.
var teamTable = []Team{
	{ID: "DEV", Name: "Development", Description: "Software design and implementation",
		Keywords: []string{"backend", "api", "rest", "jwt", "auth", "build", "design", "payment"}, Color: "#4F8EF7"},
	{ID: "SEC", Name: "Security", Description: "Offensive and defensive security",
		Keywords: []string{"security", "pen-test", "payment", "vulnerability", "audit", "exploit"}, Color: "#E5484D"},
	{ID: "INF", Name: "Infrastructure", Description: "Deployment, platforms and operations",
		Keywords: []string{"deploy", "infrastructure", "kubernetes", "docker", "cloud", "terraform"}, Color: "#F5A623"},
	{ID: "QA", Name: "Quality Assurance", Description: "Testing and quality engineering",
		Keywords: []string{"testing", "tests", "test", "load", "quality", "coverage"}, Color: "#30A46C"},
}

// Pool is the in-memory registry of all agents and their team membership.
// It exclusively owns Agent values; teams hold views into the same agents.
type Pool struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	order     []string // registration order, used for tie-breaking
	teams     map[string]*Team
	teamOrder []string
	logger    *zap.Logger
}

// New creates an empty pool with the fixed team table pre-built.
func New(logger *zap.Logger) *Pool {
	p := &Pool{
		agents: make(map[string]*Agent),
		teams:  make(map[string]*Team),
		logger: logger,
	}
	for i := range teamTable {
		t := teamTable[i]
		team := &Team{ID: t.ID, Name: t.Name, Description: t.Description,
			Keywords: t.Keywords, Color: t.Color}
		p.teams[team.ID] = team
		p.teamOrder = append(p.teamOrder, team.ID)
	}
	return p
}

// Initialize registers the given agent definitions. It is idempotent: an
// agent already registered under the same id and team is skipped. It fails
// on an unknown team id or on a duplicate id with a different definition.
func (p *Pool) Initialize(defs []AgentDef) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, def := range defs {
		team, ok := p.teams[def.TeamID]
		if !ok {
			return fmt.Errorf("agent %s declares unknown team %q", def.ID, def.TeamID)
		}
		if existing, ok := p.agents[def.ID]; ok {
			if existing.TeamID == def.TeamID {
				continue
			}
			return fmt.Errorf("duplicate agent id %s", def.ID)
		}

		a := &Agent{
			ID:           def.ID,
			Name:         def.Name,
			TeamID:       def.TeamID,
			Description:  def.Description,
			Capabilities: append([]string(nil), def.Capabilities...),
			Keywords:     append([]string(nil), def.Keywords...),
			State:        StateIdle,
			LastActivity: time.Now(),
			keywordSet:   lowerSet(def.Keywords),
		}
		p.agents[a.ID] = a
		p.order = append(p.order, a.ID)
		team.Agents = append(team.Agents, a)
	}

	p.logger.Info("agent pool initialized",
		zap.Int("agents", len(p.agents)),
		zap.Int("teams", len(p.teams)))
	return nil
}

// Agent returns the agent with the given id, or nil.
func (p *Pool) Agent(id string) *Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.agents[id]
}

// AgentSnapshot returns a copy of one agent's current state.
func (p *Pool) AgentSnapshot(id string) (Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// Team returns the team with the given id, or nil.
func (p *Pool) Team(id string) *Team {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.teams[id]
}

// Agents returns a snapshot of all agents in registration order. Runtime
// fields are copied under the lock, so the result is safe to marshal while
// the dispatcher keeps flipping states.
func (p *Pool) Agents() []Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Agent, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.agents[id])
	}
	return out
}

// Teams returns all teams in fixed table order. Team identity fields are
// immutable after Initialize; member state reads must go through the pool.
func (p *Pool) Teams() []*Team {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Team, 0, len(p.teamOrder))
	for _, id := range p.teamOrder {
		out = append(out, p.teams[id])
	}
	return out
}

// TeamSnapshots returns value copies of every team and its members, in fixed
// table order, safe to marshal concurrently with state transitions.
func (p *Pool) TeamSnapshots() []Team {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Team, 0, len(p.teamOrder))
	for _, id := range p.teamOrder {
		t := p.teams[id]
		snap := *t
		snap.Agents = make([]*Agent, 0, len(t.Agents))
		for _, a := range t.Agents {
			ac := *a
			snap.Agents = append(snap.Agents, &ac)
		}
		out = append(out, snap)
	}
	return out
}

// HasAgent reports whether the id is registered.
func (p *Pool) HasAgent(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.agents[id]
	return ok
}

// AgentIDs returns all registered ids in registration order.
func (p *Pool) AgentIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// scored pairs an agent with its keyword overlap count.
type scored struct {
	agent *Agent
	score int
	pos   int
}

// FindAgentsByKeywords returns agents whose keyword sets overlap the given
// keywords, highest overlap first; ties keep registration order.
func (p *Pool) FindAgentsByKeywords(keywords []string) []*Agent {
	kws := lowerSet(keywords)

	p.mu.RLock()
	defer p.mu.RUnlock()

	var matches []scored
	for i, id := range p.order {
		a := p.agents[id]
		n := 0
		for kw := range kws {
			if _, ok := a.keywordSet[kw]; ok {
				n++
			}
		}
		if n > 0 {
			matches = append(matches, scored{agent: a, score: n, pos: i})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].pos < matches[j].pos
	})

	out := make([]*Agent, len(matches))
	for i, m := range matches {
		out[i] = m.agent
	}
	return out
}

// AvailableAgents returns the team's available agents in registration order.
// All availability reads go through the pool lock; nil for an unknown team.
func (p *Pool) AvailableAgents(teamID string) []*Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.teams[teamID]
	if !ok {
		return nil
	}
	var out []*Agent
	for _, a := range t.Agents {
		if a.Available() {
			out = append(out, a)
		}
	}
	return out
}

// BestAgentForTask asks each keyword-matching team, best match first, for its
// best available agent and returns the first hit. A team whose vocabulary
// matches answers even when none of its agents' own keywords do. When no team
// matches, any available agent wins; nil means every agent is busy.
func (p *Pool) BestAgentForTask(keywords []string) *Agent {
	kws := lowerSet(keywords)

	p.mu.RLock()
	defer p.mu.RUnlock()

	var teams []scoredTeam
	for i, id := range p.teamOrder {
		t := p.teams[id]
		if n := overlap(kws, t.Keywords); n > 0 {
			teams = append(teams, scoredTeam{team: t, score: n, pos: i})
		}
	}
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].score != teams[j].score {
			return teams[i].score > teams[j].score
		}
		return teams[i].pos < teams[j].pos
	})
	for _, st := range teams {
		if a := bestAvailableLocked(st.team, kws); a != nil {
			return a
		}
	}

	for _, id := range p.order {
		if a := p.agents[id]; a.Available() {
			return a
		}
	}
	return nil
}

type scoredTeam struct {
	team  *Team
	score int
	pos   int
}

// bestAvailableLocked picks the team's available agent with the highest
// keyword overlap, falling back to its first available agent. Caller holds
// the pool lock.
func bestAvailableLocked(t *Team, kws map[string]struct{}) *Agent {
	var first, best *Agent
	bestScore := 0
	for _, a := range t.Agents {
		if !a.Available() {
			continue
		}
		if first == nil {
			first = a
		}
		n := 0
		for kw := range a.keywordSet {
			if _, ok := kws[kw]; ok {
				n++
			}
		}
		if n > bestScore {
			best, bestScore = a, n
		}
	}
	if best != nil {
		return best
	}
	return first
}

// SetAgentState transitions an agent's runtime state. taskID must be set for
// pending/running and empty otherwise; the pool enforces that pairing.
func (p *Pool) SetAgentState(id string, state AgentState, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	switch state {
	case StatePending, StateRunning:
		if taskID == "" {
			return fmt.Errorf("agent %s: state %s requires a task id", id, state)
		}
		a.CurrentTaskID = taskID
	default:
		a.CurrentTaskID = ""
	}
	a.State = state
	a.LastActivity = time.Now()
	return nil
}

// RecordResult bumps the agent's success or error counter.
func (p *Pool) RecordResult(id string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return
	}
	if success {
		a.SuccessCount++
	} else {
		a.ErrorCount++
	}
}

func overlap(kws map[string]struct{}, words []string) int {
	n := 0
	for _, w := range words {
		if _, ok := kws[strings.ToLower(w)]; ok {
			n++
		}
	}
	return n
}

func lowerSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
