package categorize

// FallbackBrowser is the category of an unrecognized site.
const FallbackBrowser = "browsing"

// Browser categorizes visits by domain substring.
type Browser struct {
	chain *Chain
}

// NewBrowser returns a browser domain categorizer.
func NewBrowser() *Browser {
	return &Browser{chain: NewChain(FallbackBrowser,
		Rule{Name: "development", Category: "development", Match: containsAny(
			"github.com", "gitlab.com", "bitbucket.org", "dev.azure.com", "stackoverflow.com", "stackexchange.com")},
		Rule{Name: "reference", Category: "reference", Match: containsAny(
			"docs.", "wiki.", "learn.microsoft.com", "developer.mozilla.org", "devdocs.io", "readthedocs.io", "man7.org")},
		Rule{Name: "communication", Category: "communication", Match: containsAny(
			"teams.microsoft.com", "slack.com", "discord.com", "outlook.office", "mail.", "gmail.com")},
		Rule{Name: "planning", Category: "planning", Match: containsAny(
			"jira.", "atlassian.", "trello.com", "linear.app", "notion.so", "asana.com")},
		Rule{Name: "cloud", Category: "cloud", Match: containsAny(
			"portal.azure.com", "console.aws.amazon.com", "console.cloud.google.com")},
		Rule{Name: "ai", Category: "ai", Match: containsAny(
			"claude.ai", "chatgpt.com", "chat.openai.com", "copilot.microsoft.com")},
		Rule{Name: "search", Category: "search", Match: containsAny(
			"google.com/search", "bing.com/search", "duckduckgo.com")},
		Rule{Name: "documents", Category: "documents", Match: containsAny(
			"sharepoint.com", "onedrive.live.com")},
	)}
}

// Categorize returns the category of a visited domain.
func (b *Browser) Categorize(domain string) string {
	return b.chain.Categorize(domain)
}
