package driver

// IndexQueries are run by BuildIndices. Memgraph rejects duplicates with an
// error, which callers treat as a warning.
var IndexQueries = []string{
	"CREATE INDEX ON :Place(id);",
	"CREATE INDEX ON :Place(graph);",
	"CREATE INDEX ON :GraphRun(uuid);",
}

const (
	SavePlacesQuery = `
		UNWIND $nodes AS n
		MERGE (p:Place {graph: $graph, id: n.id})
		SET p.name = n.name,
			p.lat = n.lat,
			p.lon = n.lon,
			p.type = n.type,
			p.run_id = $run_id,
			p.updated_at = $updated_at
		RETURN count(p) AS count
	`

	// Edges hold no identity across runs, so a graph's edges are replaced
	// wholesale before the new set is written.
	DeleteGraphEdgesQuery = `
		MATCH (:Place {graph: $graph})-[r:CONNECTS]-(:Place {graph: $graph})
		DELETE r
	`

	SaveEdgesQuery = `
		UNWIND $edges AS e
		MATCH (a:Place {graph: $graph, id: e.from_id})
		MATCH (b:Place {graph: $graph, id: e.to_id})
		CREATE (a)-[r:CONNECTS {
			distance_meters: e.distance_meters,
			speed_kph: e.speed_kph,
			undirected: e.undirected,
			way_class: e.way_class,
			way_id: e.way_id,
			run_id: $run_id
		}]->(b)
		RETURN count(r) AS count
	`

	SaveRunQuery = `
		MERGE (r:GraphRun {uuid: $uuid})
		SET r.graph = $graph,
			r.kind = $kind,
			r.created_at = $created_at,
			r.processed = $processed,
			r.added = $added,
			r.updated = $updated,
			r.skipped = $skipped,
			r.errored = $errored,
			r.nodes = $nodes,
			r.edges = $edges
		RETURN r.uuid AS uuid
	`

	GetPlacesQuery = `
		MATCH (p:Place {graph: $graph})
		RETURN p.id AS id, p.name AS name, p.lat AS lat, p.lon AS lon, p.type AS type
		ORDER BY p.id
	`
)
