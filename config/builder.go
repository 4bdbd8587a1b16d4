package config

import (
	"fmt"

	"github.com/jpalmerr/devpoll"
)

// BuildCommands converts parsed configuration into SDK commands.
//
// Direct commands come first, in file order, followed by grid expansions.
func BuildCommands(cfg *Config) ([]devpoll.Command, error) {
	var commands []devpoll.Command

	for _, cc := range cfg.Commands {
		cmd, err := buildCommand(cc)
		if err != nil {
			return nil, fmt.Errorf("command %s: %w", cc.Name, err)
		}
		commands = append(commands, cmd)
	}

	for _, gc := range cfg.Grids {
		gridCommands, err := buildGridCommands(gc)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", gc.Name, err)
		}
		commands = append(commands, gridCommands...)
	}

	return commands, nil
}

func buildCommand(cc CommandConfig) (devpoll.Command, error) {
	target := cc.Target
	if target == "" {
		target = cc.Name
	}

	opts := []devpoll.CommandOption{
		devpoll.WithTarget(target),
		devpoll.WithPayload(cc.Payload),
	}
	if cc.Repeat {
		opts = append(opts, devpoll.WithRepeat())
	}

	return devpoll.NewCommand(cc.URL, opts...)
}

func buildGridCommands(gc GridConfig) ([]devpoll.Command, error) {
	opts := []devpoll.GridOption{
		devpoll.WithURLTemplate(gc.URLTemplate),
		devpoll.WithDimensions(gc.Dimensions),
	}
	if gc.PayloadTemplate != "" {
		opts = append(opts, devpoll.WithPayloadTemplate(gc.PayloadTemplate))
	}
	if gc.TargetTemplate != "" {
		opts = append(opts, devpoll.WithTargetTemplate(gc.TargetTemplate))
	}
	if gc.Repeat {
		opts = append(opts, devpoll.WithGridRepeat())
	}

	return devpoll.NewCommandGrid(gc.Name, opts...)
}

// Options converts the whole configuration into [devpoll.New] options,
// commands included.
func Options(cfg *Config) ([]devpoll.Option, error) {
	commands, err := BuildCommands(cfg)
	if err != nil {
		return nil, err
	}

	opts := []devpoll.Option{
		devpoll.WithCommands(commands...),
		devpoll.WithPort(cfg.Port),
	}
	if cfg.PollInterval != 0 {
		opts = append(opts, devpoll.WithPollInterval(cfg.PollInterval.Duration()))
	}
	if cfg.Timeout != 0 {
		opts = append(opts, devpoll.WithTimeout(cfg.Timeout.Duration()))
	}
	if cfg.ResendPayload {
		opts = append(opts, devpoll.WithResendPayload())
	}
	if cfg.FailFast {
		opts = append(opts, devpoll.WithFailFast())
	}
	if cfg.Transport.DisableNative {
		opts = append(opts, devpoll.WithoutNative())
	}
	if cfg.Transport.DisableLegacy {
		opts = append(opts, devpoll.WithoutLegacy())
	}
	if cfg.Store.Backend == BackendRedis {
		opts = append(opts, devpoll.WithRedis(devpoll.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		}))
	}

	return opts, nil
}
