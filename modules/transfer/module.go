package transfer

import (
	"github.com/go-faster/errors"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/presentation/controllers"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
)

type ModuleOptions struct {
	Stores     domain.StoreRegistry
	Importer   services.ImporterOptions
	Controller controllers.TransferControllerOptions
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.opts.Stores == nil {
		return errors.New("transfer module needs an entity store")
	}
	if m.opts.Importer.Logger == nil {
		m.opts.Importer.Logger = app.Logger().WithField("module", m.Name())
	}

	app.RegisterServices(
		services.NewTransferService(m.opts.Stores, m.opts.Importer),
	)

	app.RegisterControllers(
		controllers.NewTransferController(app, m.opts.Controller),
	)
	return nil
}

func (m *Module) Name() string {
	return "transfer"
}
