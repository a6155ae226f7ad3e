package adapter

const claudeHooklessSettingsJSON = `{"hooks":{}}`

// NewClaude binds the "claude"/"claude-cli" node types to the `claude` CLI.
func NewClaude() Adapter {
	return &cliAdapter{
		name:    "claude",
		command: "claude",
		argv: func(opts Options) []string {
			args := []string{"-p", opts.Prompt, "--output-format", "text", "--settings", claudeHooklessSettingsJSON}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.SystemPrompt != "" {
				args = append(args, "--append-system-prompt", opts.SystemPrompt)
			}
			return args
		},
	}
}
