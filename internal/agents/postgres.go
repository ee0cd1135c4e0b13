package agents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/liveness"
)

// PostgresSource reads agents and topology straight from the backend's
// database. It expects the agents, metrics, loop_sites, and loop_nodes
// tables:
//
//	agents(id, name, display_name, status, is_protected, site_id, node_id,
//	       last_heartbeat, created_at)
//	metrics(agent_id, recorded_at, total_bucks, follower_count)
//	loop_sites(id, name)
//	loop_nodes(id, site_id, name)
//
// The bottleneck snapshot is not stored there; pair this with HTTPSource.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource wraps an existing *sql.DB.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgres opens and pings a pgx-backed *sql.DB.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid agents.dsn", "")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Failed to connect to the agent database",
			"Check agents.dsn and that Postgres is reachable")
	}
	return db, nil
}

const agentsQuery = `
SELECT a.id, a.name, COALESCE(a.display_name, ''), COALESCE(a.status, 'DESIGN'),
       a.last_heartbeat, COALESCE(m.total_bucks, 0), COALESCE(m.follower_count, 0),
       COALESCE(a.is_protected, FALSE), COALESCE(a.site_id, ''), COALESCE(a.node_id, ''),
       COALESCE(s.name, ''), COALESCE(n.name, '')
FROM agents a
LEFT JOIN LATERAL (
  SELECT total_bucks, follower_count
  FROM metrics
  WHERE agent_id = a.id
  ORDER BY recorded_at DESC
  LIMIT 1
) m ON TRUE
LEFT JOIN loop_sites s ON s.id = a.site_id
LEFT JOIN loop_nodes n ON n.id = a.node_id
WHERE ($1 = '' OR a.site_id = $1) AND ($2 = '' OR a.node_id = $2)
ORDER BY a.created_at DESC
`

// Agents implements Source.
func (s *PostgresSource) Agents(ctx context.Context, f Filter) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, agentsQuery, f.Site, f.Node)
	if err != nil {
		return nil, s.wrap(ctx, err, "list agents")
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var (
			a         Agent
			status    string
			heartbeat sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.DisplayName, &status,
			&heartbeat, &a.Bucks, &a.Followers,
			&a.IsProtected, &a.SiteID, &a.NodeID,
			&a.SiteName, &a.NodeName); err != nil {
			return nil, s.wrap(ctx, err, "scan agent")
		}
		a.Status = liveness.ParseStatus(status)
		if heartbeat.Valid {
			hb := heartbeat.Time
			a.LastHeartbeat = &hb
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, err, "list agents")
	}
	return out, nil
}

const topologyQuery = `
SELECT s.id, s.name, n.id, n.name
FROM loop_sites s
LEFT JOIN loop_nodes n ON n.site_id = s.id
ORDER BY s.name, n.name
`

// Topology implements Source.
func (s *PostgresSource) Topology(ctx context.Context) (Topology, error) {
	rows, err := s.db.QueryContext(ctx, topologyQuery)
	if err != nil {
		return Topology{}, s.wrap(ctx, err, "load topology")
	}
	defer rows.Close()

	var (
		topo  Topology
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			siteID, siteName string
			nodeID, nodeName sql.NullString
		)
		if err := rows.Scan(&siteID, &siteName, &nodeID, &nodeName); err != nil {
			return Topology{}, s.wrap(ctx, err, "scan topology")
		}
		i, ok := index[siteID]
		if !ok {
			i = len(topo.Sites)
			index[siteID] = i
			topo.Sites = append(topo.Sites, Site{ID: siteID, Name: siteName})
		}
		if nodeID.Valid {
			topo.Sites[i].Nodes = append(topo.Sites[i].Nodes, Node{
				ID:     nodeID.String,
				SiteID: siteID,
				Name:   nodeName.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return Topology{}, s.wrap(ctx, err, "load topology")
	}
	return topo, nil
}

func (s *PostgresSource) wrap(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.WrapWithCode(ctxErr, errors.CodeOf(ctxErr), fmt.Sprintf("postgres source: %s did not finish", op), "")
	}
	return errors.WrapWithCode(err, errors.ErrStore, fmt.Sprintf("postgres source: %s", op), "")
}
