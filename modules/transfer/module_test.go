package transfer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/memstore"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
)

func TestModuleRegistersServiceAndRoutes(t *testing.T) {
	app := application.New(&application.ApplicationOptions{})
	require.NoError(t, app.RegisterModules(NewModule(ModuleOptions{Stores: memstore.New()})))

	_, ok := app.Service(services.TransferService{}).(*services.TransferService)
	require.True(t, ok)
	require.Len(t, app.Controllers(), 1)

	r := mux.NewRouter()
	for _, c := range app.Controllers() {
		c.Register(r)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/transfer/export?format=json&types=person", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestModuleNeedsStores(t *testing.T) {
	app := application.New(&application.ApplicationOptions{})
	err := app.RegisterModules(NewModule(ModuleOptions{}))
	require.ErrorContains(t, err, "register module transfer")
}
