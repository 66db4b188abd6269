package runner

import (
	"strings"

	"satrunner/internal/config"
	"satrunner/internal/secrets"
)

// Settings is everything one Run needs. It is copied per Run, so a config
// reload never changes a Run already in progress.
type Settings struct {
	Task string

	WorkRoot      string
	KeepWorkspace bool

	Source  config.SourceConfig
	Runtime config.RuntimeConfig
	Install config.InstallConfig
	Invoke  config.InvokeConfig

	DiagnoseSecrets bool
	Secrets         secrets.Declaration

	// Lookup resolves secret and passthrough names. nil means os.LookupEnv.
	Lookup secrets.LookupFunc
}

// SettingsFromConfig maps the task and secrets sections.
func SettingsFromConfig(c *config.Config) Settings {
	t := c.Task
	return Settings{
		Task:            strings.TrimSpace(t.Name),
		WorkRoot:        strings.TrimSpace(t.WorkRoot),
		KeepWorkspace:   t.KeepWorkspace,
		Source:          t.Source,
		Runtime:         t.Runtime,
		Install:         t.Install,
		Invoke:          t.Invoke,
		DiagnoseSecrets: t.DiagnoseSecrets,
		Secrets:         secrets.FromConfig(c.Secrets),
	}
}
