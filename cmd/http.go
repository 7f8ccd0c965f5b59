package main

import (
	"github.com/MimeLyc/cloudmaint/internal/httpapi"
	"github.com/MimeLyc/cloudmaint/internal/service"
)

func newHTTPServer(comps *service.Components) *httpapi.Server {
	return httpapi.NewServer(comps.Queue, comps.L10N,
		httpapi.WithSettingsStore(comps.Settings),
		httpapi.WithSettingsApplier(comps.ApplySettings),
		httpapi.WithEvents(comps.Hub),
		httpapi.WithMetrics(comps.Metrics),
		httpapi.WithTrashExpiry(comps.Service.EnqueueExpire),
		httpapi.WithTrashDelete(comps.TrashFile),
		httpapi.WithAppUpgrade(comps.UpgradeApp),
		httpapi.WithUsers(comps.Users),
		httpapi.WithJobClasses(comps.Service.Classes()),
	)
}
