package adapter

// NewCodex binds the "codex" node type to the `codex` CLI.
func NewCodex() Adapter {
	return &cliAdapter{
		name:    "codex",
		command: "codex",
		argv: func(opts Options) []string {
			args := []string{"exec", opts.Prompt}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			return args
		},
	}
}
