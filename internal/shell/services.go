package shell

import (
	"apple2chat/internal/context"
	"apple2chat/internal/logger"
	"apple2chat/internal/services"
)

// InitializeServices registers and initializes every apple2chat service in the
// global registry. Registration order is initialization order.
func InitializeServices(testMode bool) error {
	globalCtx := context.GetGlobalContext()
	globalCtx.SetTestMode(testMode)

	registry := services.GetGlobalRegistry()
	for _, service := range []interface {
		Name() string
		Initialize() error
	}{
		// Configuration first: every other service reads it
		services.NewConfigurationService(),
		services.NewCatalogService(),
		services.NewChatSessionService(),
		services.NewClientFactoryService(),
		services.NewMarkdownService(),
		services.NewThemeService(),
		services.NewRelayService(),
	} {
		if err := registry.RegisterService(service); err != nil {
			return err
		}
	}

	if err := registry.InitializeAll(); err != nil {
		return err
	}

	logger.Debug("Services initialized")
	return nil
}
