package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/observability"
	"github.com/smallbiznis/sentinel/internal/server"
	"github.com/smallbiznis/sentinel/pkg/db"
	"go.uber.org/fx"
)

// Node 2 of the snowflake space; see cmd/sentinel for the allocation.
const snowflakeNodeID = 2

// API-only deployable. Pairs with apps/scheduler when the pipeline and
// the read surface scale separately.
func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,

		// server.Module carries config plus every domain the API serves.
		// Schema migrations run out of band (cmd/sentinel or the migrate CLI).
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(snowflakeNodeID)
}
