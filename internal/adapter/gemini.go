package adapter

// NewGemini binds the "gemini" node type to the `gemini` CLI.
func NewGemini() Adapter {
	return &cliAdapter{
		name:    "gemini",
		command: "gemini",
		argv: func(opts Options) []string {
			args := []string{"-p", opts.Prompt}
			if opts.Model != "" {
				args = append(args, "-m", opts.Model)
			}
			return args
		},
	}
}
