package container

import (
	app "vision-scan/internal/application"
	"vision-scan/internal/domain/port"
)

// Adapters внешние зависимости приложения
type Adapters struct {
	Camera       port.Camera
	Preprocessor port.Preprocessor
	Identifier   port.Identifier
	Motion       port.MotionDetector
	Store        port.ResultStore
	Sink         port.MetricsSink
}

type Container struct {
	Pipeline   *app.ScanPipeline
	Controller *app.Controller
	Store      port.ResultStore
}

func New(cfg app.ControllerConfig, a Adapters) *Container {
	pipeline := app.NewScanPipeline(a.Preprocessor, a.Identifier)
	controller := app.NewController(cfg, a.Camera, pipeline, a.Motion, a.Store, a.Sink)

	return &Container{
		Pipeline:   pipeline,
		Controller: controller,
		Store:      a.Store,
	}
}

// Close останавливает контроллер и освобождает камеру
func (c *Container) Close() error {
	return c.Controller.Close()
}
