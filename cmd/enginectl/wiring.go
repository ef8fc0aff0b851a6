package main

import (
	"github.com/hypebeast/go-osc/osc"

	"github.com/b0yaux/enginecore/internal/clock"
	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/config"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/modules"
	"github.com/b0yaux/enginecore/internal/router"
	"github.com/b0yaux/enginecore/internal/runtime"
)

// buildEngine wires one Engine's collaborators the way every
// subcommand needs them: every concrete module type registered, both
// system outputs ensured, and an OSC client attached only if the
// settings ask for one.
func buildEngine(s *config.Settings) (*command.Engine, error) {
	clk := clock.New(s.SampleRate, s.BPM)
	reg := module.NewRegistry()
	fac := module.NewFactory()
	modules.RegisterAll(fac)
	conns := connection.NewManager()
	rtr := router.NewRouter(func(name string) (router.ParameterGetter, error) { return reg.ByName(name) })
	rt := runtime.New(clk)

	var oscClient *osc.Client
	if s.OSC.Enabled {
		oscClient = osc.NewClient(s.OSC.Host, s.OSC.Port)
	}

	e := command.NewEngine(clk, rt, reg, fac, conns, rtr, oscClient, s.Queue.Capacity)
	if err := module.EnsureSystemModules(reg, fac, modules.AudioOutputTypeName, modules.VideoOutputTypeName); err != nil {
		return nil, err
	}
	return e, nil
}
