// Package neo4jstore is an Entity Store Client that talks Cypher to the graph
// database directly. It is used by the CLI when no GraphQL API is reachable.
package neo4jstore

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

type Options struct {
	URI      string
	Username string
	Password string
	Database string
	Logger   *logrus.Entry
}

// runner executes one statement in its own managed transaction and returns
// every row as a map.
type runner interface {
	Run(ctx context.Context, write bool, cypher string, params map[string]any) ([]map[string]any, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logrus.Entry
}

func (d *driverRunner) Run(ctx context.Context, write bool, cypher string, params map[string]any) ([]map[string]any, error) {
	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: d.database})
	defer func() { _ = session.Close(ctx) }()

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, r.AsMap())
		}
		return rows, nil
	}
	var (
		out any
		err error
	)
	if write {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		d.log.WithError(err).WithField("write", write).Debug("cypher failed")
		return nil, err
	}
	return out.([]map[string]any), nil
}

// Registry owns the driver and hands out one store per entity type.
type Registry struct {
	driver neo4j.DriverWithContext
	run    runner
}

// Open connects to the database and verifies connectivity before returning.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	if opts.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrusNop()
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "neo4j driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.Wrap(err, "neo4j connectivity")
	}
	return &Registry{
		driver: driver,
		run:    &driverRunner{driver: driver, database: opts.Database, log: opts.Logger},
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Close(ctx)
}

func (r *Registry) Store(t schema.EntityType) (domain.EntityStore, error) {
	s, ok := schema.Of(t)
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownEntityType, "%q", t)
	}
	return &entityStore{run: r.run, s: s}, nil
}

type entityStore struct {
	run runner
	s   *schema.Schema
}

var (
	_ domain.EntityStore = (*entityStore)(nil)
	_ domain.Getter      = (*entityStore)(nil)
)

func (e *entityStore) Create(ctx context.Context, in domain.CreateInput) (domain.Record, error) {
	keyed := in.IdempotencyKey != ""
	props := in.Fields
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{"props": props}
	if keyed {
		params["key"] = in.IdempotencyKey
	}
	rows, err := e.run.Run(ctx, true, createCypher(e.s, keyed), params)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", e.s.Type)
	}
	rec, ok := nodeOf(rows)
	if !ok {
		return nil, errors.Errorf("create %s returned no node", e.s.Type)
	}
	return rec, nil
}

func (e *entityStore) Update(ctx context.Context, id string, in domain.UpdateInput) (domain.Record, error) {
	cypher, err := updateCypher(e.s, in)
	if err != nil {
		return nil, err
	}
	rows, err := e.run.Run(ctx, true, cypher, updateParams(id, in))
	if err != nil {
		return nil, errors.Wrapf(err, "update %s %q", e.s.Type, id)
	}
	rec, ok := nodeOf(rows)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", e.s.Type, id)
	}
	return rec, nil
}

func (e *entityStore) Exists(ctx context.Context, id string) (bool, error) {
	rows, err := e.run.Run(ctx, false, existsCypher(e.s), map[string]any{"id": id})
	if err != nil {
		return false, errors.Wrapf(err, "exists %s %q", e.s.Type, id)
	}
	if len(rows) == 0 {
		return false, nil
	}
	found, _ := rows[0]["found"].(bool)
	return found, nil
}

func (e *entityStore) Get(ctx context.Context, id string) (domain.Record, error) {
	rows, err := e.run.Run(ctx, false, getCypher(e.s), map[string]any{"id": id})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s %q", e.s.Type, id)
	}
	rec, ok := nodeOf(rows)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s %q", e.s.Type, id)
	}
	return rec, nil
}

func (e *entityStore) List(ctx context.Context, scope domain.Scope) ([]domain.Record, error) {
	cypher, err := listCypher(e.s, scope)
	if err != nil {
		return nil, err
	}
	rows, err := e.run.Run(ctx, false, cypher, scopeParams(scope))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", e.s.Type)
	}
	out := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		if m, ok := row["node"].(map[string]any); ok {
			out = append(out, domain.Record(m))
		}
	}
	return out, nil
}

func (e *entityStore) DeleteWhere(ctx context.Context, scope domain.Scope) (int, error) {
	cypher, err := deleteCypher(e.s, scope)
	if err != nil {
		return 0, err
	}
	rows, err := e.run.Run(ctx, true, cypher, scopeParams(scope))
	if err != nil {
		return 0, errors.Wrapf(err, "delete %s", e.s.Type)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["deleted"].(int64)
	return int(n), nil
}

func nodeOf(rows []map[string]any) (domain.Record, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	m, ok := rows[0]["node"].(map[string]any)
	if !ok {
		return nil, false
	}
	return domain.Record(m), true
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
