package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

type Deleter struct {
	stores domain.StoreRegistry
	log    *logrus.Entry
}

func NewDeleter(stores domain.StoreRegistry, log *logrus.Entry) *Deleter {
	if log == nil {
		log = logrusNop()
	}
	return &Deleter{stores: stores, log: log}
}

// Delete removes every node of the given types within scope and returns how
// many went. It stops at the first failing type; the count covers the types
// deleted before it.
func (d *Deleter) Delete(ctx context.Context, types []schema.EntityType, scope domain.Scope) (total int, err error) {
	defer func() { recordRun("delete", err) }()
	stores, err := domain.ResolveStores(d.stores, types)
	if err != nil {
		return 0, err
	}
	for _, t := range types {
		start := time.Now()
		n, err := stores[t].DeleteWhere(ctx, scope)
		observeStoreCall(t, "delete", err, time.Since(start))
		if err != nil {
			return total, errors.Wrapf(err, "delete %s", t)
		}
		total += n
		d.log.WithFields(logrus.Fields{"entity_type": t, "deleted": n, "company": scope.CompanyID}).Info("deleted")
	}
	return total, nil
}
