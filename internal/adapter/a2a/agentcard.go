package a2a

// BuildAgentCard returns the coordinator's own agent card, served on
// the HTTP surface for discovery by the pipeline agents.
func BuildAgentCard(baseURL string) AgentCard {
	return AgentCard{
		Name:        "watchcore",
		Description: "Technical watch pipeline coordinator",
		URL:         baseURL,
		Version:     "0.1.0",
		Skills: []Skill{
			{
				ID:          "start-workflow",
				Name:        "Start Workflow",
				Description: "Create and asynchronously execute a watch pipeline run",
				InputModes:  []string{"data"},
				OutputModes: []string{"data"},
			},
			{
				ID:          "workflow-status",
				Name:        "Workflow Status",
				Description: "Read-only projection of a workflow and its tasks",
				InputModes:  []string{"data"},
				OutputModes: []string{"data"},
			},
		},
	}
}
