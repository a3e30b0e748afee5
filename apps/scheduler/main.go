package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/ingest"
	"github.com/smallbiznis/sentinel/internal/observability"
	"github.com/smallbiznis/sentinel/internal/ranking"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	"github.com/smallbiznis/sentinel/internal/risk"
	"github.com/smallbiznis/sentinel/internal/rollup"
	"github.com/smallbiznis/sentinel/internal/scheduler"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"github.com/smallbiznis/sentinel/pkg/db"
	"go.uber.org/fx"
)

// Node 3 of the snowflake space; see cmd/sentinel for the allocation.
const snowflakeNodeID = 3

// Pipeline-only deployable: fetch, assess and export on the configured
// cadence, with no HTTP surface. Pairs with apps/api.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,

		// Pipeline domains the scheduler drives.
		socrata.Module,
		ingest.Module,
		rollup.Module,
		risk.Module,
		ranking.Module,

		// Redis-backed refresh lock so only one replica runs the pipeline.
		ratelimit.Module,

		scheduler.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(snowflakeNodeID)
}
