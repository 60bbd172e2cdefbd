package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/geocubed/cubehub/internal/cluster"
	"github.com/geocubed/cubehub/internal/config"
	"github.com/geocubed/cubehub/internal/observability"
	"github.com/geocubed/cubehub/internal/server"
	"github.com/geocubed/cubehub/internal/store"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		store.Module,
		cluster.Module,

		// HTTP surface and the domain services it drives
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
