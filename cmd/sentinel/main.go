package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/migration"
	"github.com/smallbiznis/sentinel/internal/observability"
	"github.com/smallbiznis/sentinel/internal/remotemetrics"
	"github.com/smallbiznis/sentinel/internal/scheduler"
	"github.com/smallbiznis/sentinel/internal/server"
	"github.com/smallbiznis/sentinel/pkg/db"
	"go.uber.org/fx"
)

// Snowflake node IDs keep the deployables from minting colliding IDs
// when run side by side: 1 all-in-one, 2 api, 3 scheduler.
const snowflakeNodeID = 1

// The all-in-one binary: migrate, serve the API and run the scheduler
// in a single process. Invocations run in registration order, so the
// schema is current before the server accepts traffic.
func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module carries config plus every domain module.
		server.Module,
		scheduler.Module,
		remotemetrics.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(snowflakeNodeID)
}
