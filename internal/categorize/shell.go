package categorize

import "strings"

// FallbackShell is the category of an unrecognized command.
const FallbackShell = "command"

// Shell categorizes commands by their first token.
type Shell struct {
	chain *Chain
}

// NewShell returns a shell command categorizer.
func NewShell() *Shell {
	testRunner := firstTokenIn("pytest", "jest", "vitest", "dotnet")
	return &Shell{chain: NewChain(FallbackShell,
		Rule{Name: "vcs", Category: "vcs", Match: firstTokenIn("git", "gh", "hub")},
		Rule{Name: "build", Category: "build", Match: firstTokenIn("npm", "yarn", "pnpm", "pip", "uv", "cargo", "dotnet", "nuget", "mvn")},
		Rule{Name: "test", Category: "test", Match: func(cmd string) bool {
			return testRunner(cmd) && strings.Contains(strings.ToLower(cmd), "test")
		}},
		Rule{Name: "infra", Category: "infra", Match: firstTokenIn("docker", "docker-compose", "kubectl", "terraform", "az", "aws")},
		Rule{Name: "editor", Category: "editor", Match: firstTokenIn("code", "vim", "nvim", "nano", "notepad")},
		Rule{Name: "navigation", Category: "navigation", Match: firstTokenIn("cd", "ls", "dir", "pwd", "z", "cat", "Get-ChildItem", "Set-Location")},
		Rule{Name: "remote", Category: "remote", Match: firstTokenIn("ssh", "scp", "rsync")},
	)}
}

// Categorize returns the category of command.
func (s *Shell) Categorize(command string) string {
	return s.chain.Categorize(command)
}
