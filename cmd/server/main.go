package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/quilora/backend-go/app/bootstrap"
	"github.com/quilora/backend-go/app/router"
	"github.com/quilora/backend-go/internal/config"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	if err := router.Init(); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	web.BConfig.AppName = "Quilora RAG Service"
	web.BConfig.CopyRequestBody = true
	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	logger.Info("starting RAG service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
