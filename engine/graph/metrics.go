package graph

import (
	"context"
	"fmt"
)

// NodeCounts returns node counts grouped by label.
func (g *FitmentStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	return g.counts(ctx, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`)
}

// RelationshipCounts returns relationship counts grouped by type.
func (g *FitmentStore) RelationshipCounts(ctx context.Context) (map[string]int64, error) {
	return g.counts(ctx, `MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count`)
}

func (g *FitmentStore) counts(ctx context.Context, cypher string) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: counts: %w", err)
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, result.Err()
}

// TopMakes returns the makes with the most fitment records.
func (g *FitmentStore) TopMakes(ctx context.Context, limit int) ([]MakeStats, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (mk:Make)
		OPTIONAL MATCH (mk)-[:HAS_MODEL]->(m:VehicleModel)
		OPTIONAL MATCH (m)-[:HAS_FITMENT]->(f:Fitment)
		RETURN mk.name AS name, count(DISTINCT m) AS models, count(DISTINCT f) AS fitments
		ORDER BY fitments DESC, name ASC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"limit": int64(max(limit, 1))})
	if err != nil {
		return nil, fmt.Errorf("graph: top makes: %w", err)
	}
	var stats []MakeStats
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("name")
		models, _ := rec.Get("models")
		fitments, _ := rec.Get("fitments")
		s := MakeStats{}
		if n, ok := name.(string); ok {
			s.Name = n
		}
		if m, ok := models.(int64); ok {
			s.Models = m
		}
		if f, ok := fitments.(int64); ok {
			s.Fitments = f
		}
		stats = append(stats, s)
	}
	return stats, result.Err()
}
