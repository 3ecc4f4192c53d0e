package session

// CLI flags.
const (
	flagPrint           = "--print"
	flagResume          = "--resume"
	flagOutputFormat    = "--output-format"
	flagVerbose         = "--verbose"
	flagModel           = "--model"
	flagSkipPermissions = "--dangerously-skip-permissions"
	flagAllowedTools    = "--allowedTools"
	flagDisallowedTools = "--disallowedTools"

	outputFormatStreamJSON = "stream-json"
)

// BuildArgs constructs the CLI argument vector. Skipping permissions takes
// precedence over the allow/disallow lists, which are then omitted entirely.
func BuildArgs(command string, opts SpawnOptions, defaultModel string) []string {
	var args []string

	if command != "" {
		args = append(args, flagPrint, command)
	}

	resuming := opts.Resume && opts.SessionID != ""
	if resuming {
		args = append(args, flagResume, opts.SessionID)
	}

	args = append(args, flagOutputFormat, outputFormatStreamJSON, flagVerbose)

	if !resuming && defaultModel != "" {
		args = append(args, flagModel, defaultModel)
	}

	if opts.SkipPermissions {
		return append(args, flagSkipPermissions)
	}

	for _, tool := range opts.AllowedTools {
		args = append(args, flagAllowedTools, tool)
	}
	for _, tool := range opts.DisallowedTools {
		args = append(args, flagDisallowedTools, tool)
	}
	return args
}
