package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// FitmentStore serves and stores fitment records in Neo4j.
type FitmentStore struct {
	opener SessionOpener
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ fitment.Source       = (*FitmentStore)(nil)
	_ fitment.OptionSource = (*FitmentStore)(nil)
)

// New creates a FitmentStore on a driver, using the default database.
func New(driver neo4j.DriverWithContext) *FitmentStore {
	return NewWithOpener(driverOpener{driver: driver})
}

// NewWithOpener creates a FitmentStore over any SessionOpener.
func NewWithOpener(opener SessionOpener) *FitmentStore {
	return &FitmentStore{opener: opener, logger: slog.Default()}
}

// WithLogger sets the store's logger.
func (g *FitmentStore) WithLogger(l *slog.Logger) *FitmentStore {
	if l != nil {
		g.logger = l
	}
	return g
}

// yearMatch is the Cypher predicate for "fitment f covers $year". An
// explicit years list wins over the range.
const yearMatch = `($year = 0 OR
	  (size(coalesce(f.years, [])) > 0 AND $year IN f.years) OR
	  (size(coalesce(f.years, [])) = 0 AND f.year_start <= $year AND f.year_end >= $year))`

const queryFitmentCypher = `MATCH (mk:Make)-[:HAS_MODEL]->(m:VehicleModel)-[:HAS_FITMENT]->(f:Fitment)
	WHERE ($make = '' OR mk.key = $make) AND ($model = '' OR m.key = $model) AND ` + yearMatch + `
	OPTIONAL MATCH (f)-[:HAS_SPEAKER]->(s:SpeakerSlot)
	WITH mk, m, f, s ORDER BY s.position
	RETURN mk.name AS make, m.name AS model, f, collect(s) AS slots
	ORDER BY f.seq`

// QueryFitment returns records matching q in dataset order.
func (g *FitmentStore) QueryFitment(ctx context.Context, q fitment.Query) ([]domain.FitmentRecord, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, queryFitmentCypher, map[string]any{
		"year":  int64(max(q.Year, 0)),
		"make":  normalize.Name(q.Make),
		"model": normalize.Name(q.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("graph: query fitment: %w", err)
	}

	var records []domain.FitmentRecord
	for result.Next(ctx) {
		rec := result.Record()
		mk, _ := rec.Get("make")
		md, _ := rec.Get("model")
		f, _ := rec.Get("f")
		slots, _ := rec.Get("slots")
		list, _ := slots.([]any)
		mkName, _ := mk.(string)
		mdName, _ := md.(string)
		records = append(records, recordFromRow(mkName, mdName, f, list))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: query fitment: %w", err)
	}
	return records, nil
}

// Years returns every year covered by a stored fitment.
func (g *FitmentStore) Years(ctx context.Context) ([]int, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (f:Fitment) RETURN f`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: years: %w", err)
	}
	var years []int
	for result.Next(ctx) {
		f, _ := result.Record().Get("f")
		years = append(years, recordFromRow("", "", f, nil).YearList()...)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: years: %w", err)
	}
	return years, nil
}

// Makes returns make names with a fitment covering year (any year when 0).
func (g *FitmentStore) Makes(ctx context.Context, year int) ([]string, error) {
	cypher := `MATCH (mk:Make)-[:HAS_MODEL]->(:VehicleModel)-[:HAS_FITMENT]->(f:Fitment)
		WHERE ` + yearMatch + `
		RETURN DISTINCT mk.name AS name`
	return g.names(ctx, "makes", cypher, map[string]any{"year": int64(max(year, 0))})
}

// Models returns model names filtered by year and make; either may be zero.
func (g *FitmentStore) Models(ctx context.Context, year int, makeName string) ([]string, error) {
	cypher := `MATCH (mk:Make)-[:HAS_MODEL]->(m:VehicleModel)-[:HAS_FITMENT]->(f:Fitment)
		WHERE ($make = '' OR mk.key = $make) AND ` + yearMatch + `
		RETURN DISTINCT m.name AS name`
	return g.names(ctx, "models", cypher, map[string]any{
		"year": int64(max(year, 0)),
		"make": normalize.Name(makeName),
	})
}

func (g *FitmentStore) names(ctx context.Context, op, cypher string, params map[string]any) ([]string, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("graph: %s: %w", op, err)
	}
	var out []string
	for result.Next(ctx) {
		v, _ := result.Record().Get("name")
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: %s: %w", op, err)
	}
	return out, nil
}

// EnsureSchema creates the uniqueness constraints the writers rely on.
func (g *FitmentStore) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, label := range []string{"Make", "VehicleModel", "Fitment"} {
		cypher := fmt.Sprintf("CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			strings.ToLower(label), label)
		if _, err := sess.Run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("graph: ensure schema %s: %w", label, err)
		}
	}
	return nil
}

// SaveFitment creates or replaces one fitment record and its hierarchy.
func (g *FitmentStore) SaveFitment(ctx context.Context, r domain.FitmentRecord) error {
	return g.SaveBatch(ctx, []domain.FitmentRecord{r})
}

// SaveBatch writes records in a single transaction. Invalid records are
// logged and skipped; the returned error is for the transaction only.
func (g *FitmentStore) SaveBatch(ctx context.Context, records []domain.FitmentRecord) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, r := range records {
			if err := domain.ValidateFitment(r); err != nil {
				g.logger.Warn("graph: skipping invalid fitment", "vehicle", r.Make+" "+r.Model, "error", err)
				continue
			}
			if err := saveFitment(ctx, tx, r); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: save batch: %w", err)
	}
	return nil
}

func saveFitment(ctx context.Context, tx CypherRunner, r domain.FitmentRecord) error {
	id := domain.FitmentID(r)

	cypher := `MERGE (mk:Make {id: $makeID}) SET mk.name = $make, mk.key = $makeKey
		MERGE (m:VehicleModel {id: $modelID}) SET m.name = $model, m.key = $modelKey, m.make_id = $makeID
		MERGE (mk)-[:HAS_MODEL]->(m)
		MERGE (f:Fitment {id: $id}) SET f += $props
		MERGE (m)-[:HAS_FITMENT]->(f)`
	if _, err := tx.Run(ctx, cypher, map[string]any{
		"makeID":   makeID(r.Make),
		"make":     strings.TrimSpace(r.Make),
		"makeKey":  normalize.Name(r.Make),
		"modelID":  modelID(r.Make, r.Model),
		"model":    strings.TrimSpace(r.Model),
		"modelKey": normalize.Name(r.Model),
		"id":       id,
		"props":    fitmentProps(r),
	}); err != nil {
		return fmt.Errorf("fitment %s: %w", id, err)
	}

	// Slots are replaced wholesale so a re-import never leaves stale positions.
	cypher = `MATCH (f:Fitment {id: $id})-[:HAS_SPEAKER]->(s:SpeakerSlot) DETACH DELETE s`
	if _, err := tx.Run(ctx, cypher, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("fitment %s slots: %w", id, err)
	}

	slots := slotParams(r)
	if len(slots) == 0 {
		return nil
	}
	cypher = `MATCH (f:Fitment {id: $id})
		UNWIND $slots AS s
		CREATE (f)-[:HAS_SPEAKER]->(:SpeakerSlot {
			zone: s.zone, position: s.position, location: s.location,
			size: s.size, adapter: s.adapter, harness: s.harness})`
	if _, err := tx.Run(ctx, cypher, map[string]any{"id": id, "slots": slots}); err != nil {
		return fmt.Errorf("fitment %s slots: %w", id, err)
	}
	return nil
}
