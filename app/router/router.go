package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/quilora/backend-go/app/controllers"
	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/metrics"
	"github.com/quilora/backend-go/internal/services"
)

// Init registers all routes. Controllers resolve their services from the
// DI container in Prepare; the Invoke here just fails fast at startup if
// the dependency graph cannot be built.
func Init() error {
	if err := di.Invoke(func(
		*services.QueryService,
		*services.DocumentService,
		*services.HealthService,
		*metrics.Collector,
	) {
	}); err != nil {
		return err
	}

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	web.Router("/query", &controllers.QueryController{}, "post:Query")

	documentController := &controllers.DocumentController{}
	// 注意：具体路由必须在参数路由之前注册
	web.Router("/documents/upload", documentController, "post:Upload")
	web.Router("/documents", documentController, "get:List;post:Create;delete:DeleteAll")
	web.Router("/documents/:id", documentController, "delete:Delete")

	return nil
}
