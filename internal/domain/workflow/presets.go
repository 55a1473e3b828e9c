package workflow

import "fmt"

// TypeTechnicalWatch is the built-in watch pipeline: retrieval, filter,
// summarise, alert, in strict order.
const TypeTechnicalWatch = "technical-watch"

// BuiltinPlan returns the stage plan for a known workflow type.
func BuiltinPlan(wfType string) (*Plan, bool) {
	switch wfType {
	case TypeTechnicalWatch:
		return &Plan{
			Type: TypeTechnicalWatch,
			Stages: []Stage{
				{Name: "retrieval", AgentType: "retrieval", Skill: "fetch-updates", Level: 0},
				{Name: "filter", AgentType: "filter", Skill: "filter-content", Level: 1},
				{Name: "summarise", AgentType: "summarise", Skill: "summarise-content", Level: 2, Checkpointable: true},
				{Name: "alert", AgentType: "alert", Skill: "send-alert", Level: 3, Optional: true},
			},
		}, true
	default:
		return nil, false
	}
}

// PlanFromConfig builds a plan from an explicit stage list in the
// workflow configuration, for ad-hoc pipelines.
//
// Expected shape:
//
//	stages:
//	  - name: fetch
//	    agent_type: retrieval
//	    skill: fetch-updates
//	    level: 0
func PlanFromConfig(wfType string, config map[string]any) (*Plan, error) {
	raw, ok := config["stages"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("workflow type %q: no builtin plan and no stages in config", wfType)
	}

	plan := &Plan{Type: wfType}
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stage %d: expected object", i)
		}
		st := Stage{
			Name:      stringField(m, "name"),
			AgentType: stringField(m, "agent_type"),
			Skill:     stringField(m, "skill"),
		}
		if st.Name == "" || st.AgentType == "" || st.Skill == "" {
			return nil, fmt.Errorf("stage %d: name, agent_type and skill are required", i)
		}
		if lvl, ok := m["level"].(float64); ok {
			st.Level = int(lvl)
		} else {
			st.Level = i
		}
		if opt, ok := m["optional"].(bool); ok {
			st.Optional = opt
		}
		if cp, ok := m["checkpointable"].(bool); ok {
			st.Checkpointable = cp
		}
		if p, ok := m["params"].(map[string]any); ok {
			st.Params = p
		}
		if comp, ok := m["compensate_skill"].(string); ok {
			st.CompensateSkill = comp
		}
		if ma, ok := m["max_attempts"].(float64); ok {
			st.MaxAttempts = int(ma)
		}
		plan.Stages = append(plan.Stages, st)
	}
	return plan, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
