package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/rag-go/app/controllers"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/api/stats", &controllers.HealthController{}, "get:Stats")

	// 文档上传与管理
	documentController := &controllers.DocumentController{}
	web.Router("/api/documents/upload", documentController, "post:Upload")
	web.Router("/api/documents/reset", documentController, "post:Reset")
	web.Router("/api/documents/formats", documentController, "get:Formats")

	// 问答
	chatController := &controllers.ChatController{}
	web.Router("/api/chat", chatController, "post:Ask")
	web.Router("/api/chat/context", chatController, "get:ShowContext")

	// Prometheus指标
	web.Handler("/metrics", promhttp.Handler())
}
