package apikey

import (
	"github.com/smallbiznis/sentinel/internal/apikey/repository"
	"github.com/smallbiznis/sentinel/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
