package setting

import (
	"github.com/smallbiznis/petlog/internal/setting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("setting.service",
	fx.Provide(service.New),
)
