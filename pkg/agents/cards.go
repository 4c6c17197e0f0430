package agents

import "github.com/haivivi/agentkit/pkg/a2a"

func card(url, name, description string, skill a2a.AgentSkill) a2a.AgentCard {
	return a2a.AgentCard{
		Name:               name,
		Description:        description,
		URL:                url,
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		Skills:             []a2a.AgentSkill{skill},
	}
}

func ResearchCard(url string) a2a.AgentCard {
	return card(url, "Web Research Agent", "Perform research using web searches", a2a.AgentSkill{
		ID:          "web_researcher",
		Name:        "Web research agent",
		Description: "Perform research using web searches",
		Tags:        []string{"research", "internet", "search", "report"},
		Examples: []string{
			"Find me the latest news on AI agents",
			"Write a report about the latest academic papers on bubble gum",
		},
	})
}

func SlackCard(url string) a2a.AgentCard {
	return card(url, "Slack Research Agent", "Answer queries by searching through a given slack server", a2a.AgentSkill{
		ID:          "slack_researcher",
		Name:        "Slack research agent",
		Description: "Answer queries by searching through a given slack server",
		Tags:        []string{"research", "slack", "search", "report"},
		Examples: []string{
			"Find me the most popular channels for discussing AI agents",
			"Summarize what's been happening in the general channel lately",
		},
	})
}

func GitIssueCard(url string) a2a.AgentCard {
	return card(url, "Github issue agent", "Answer queries about Github issues", a2a.AgentSkill{
		ID:          "github_issue_agent",
		Name:        "Github issue agent",
		Description: "Answer queries about Github issues",
		Tags:        []string{"git", "github", "issues"},
		Examples: []string{
			"Find me the issues with the most comments in kubernetes/kubernetes",
			"Show all issues assigned to me across any repository",
		},
	})
}

func WeatherCard(url string) a2a.AgentCard {
	return card(url, "Weather Assistant", "This agent provides a simple weather information assistance.", a2a.AgentSkill{
		ID:          "weather_assistant",
		Name:        "Weather Assistant",
		Description: "Personalized assistant for weather info.",
		Tags:        []string{"weather"},
		Examples: []string{
			"What is the weather in NY?",
			"What is the weather in Rome?",
		},
	})
}
