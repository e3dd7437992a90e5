package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/engine/recommend"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
	"github.com/WessleyAI/wessley-fitment/pkg/mid"
	"github.com/WessleyAI/wessley-fitment/pkg/vehiclenlp"
)

// errInvalidYear is returned for a year parameter that is not a number.
var errInvalidYear = errors.New("invalid year")

type server struct {
	index     *fitment.Index
	resolver  *fitment.Resolver
	rec       recommend.Recommender
	extractor *vehiclenlp.Extractor
	registry  *metrics.Registry
	metrics   *metrics.Fitment
	logger    *slog.Logger
	cors      string
	locale    language.Tag
}

func newServer(a *app.App) *server {
	return &server{
		index:    a.Index,
		resolver: a.Resolver,
		rec:      a.Service,
		registry: a.Registry,
		metrics:  a.Metrics,
		logger:   a.Logger,
		cors:     a.Config.HTTP.CORSOrigin,
		locale:   a.Config.Sort.Locale,
	}
}

// routes builds the router. withMetrics mounts /metrics on it.
func (s *server) routes(withMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mid.RequestIDs(),
		mid.Recover(s.logger),
		mid.Logger(s.logger),
		mid.CORS(s.cors),
		mid.Metrics(s.registry),
		mid.OTel("fitmentd"),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)
		r.Get("/years", s.handleYears)
		r.Get("/makes", s.handleMakes)
		r.Get("/models", s.handleModels)
		r.Get("/fitment", s.handleFitment)
		r.Get("/recommendations", s.handleRecommendations)
	})
	if withMetrics {
		r.Method(http.MethodGet, "/metrics", s.registry.Handler())
	}
	return r
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.index.YearOptions(r.Context())
	if err != nil {
		s.sourceFailed(r.Context(), "years", err)
	}
	writeJSON(w, http.StatusOK, map[string][]int{"years": nonNil(years)})
}

func (s *server) handleMakes(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	makes, err := s.index.MakeOptions(r.Context(), year)
	if err != nil {
		s.sourceFailed(r.Context(), "makes", err)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"makes": nonNil(makes)})
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	models, err := s.index.ModelOptions(r.Context(), year, r.URL.Query().Get("make"))
	if err != nil {
		s.sourceFailed(r.Context(), "models", err)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": nonNil(models)})
}

// FitmentResponse is the JSON response for GET /api/fitment. Fitment is
// null when nothing matches.
type FitmentResponse struct {
	Fitment      *domain.FitmentRecord `json:"fitment"`
	Requirements *domain.Requirements  `json:"requirements,omitempty"`
	Maestro      *domain.MaestroRecord `json:"maestro,omitempty"`
}

func (s *server) handleFitment(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.resolver.Find(r.Context(), sel)
	if err != nil {
		s.sourceFailed(r.Context(), "fitment", err)
	}
	resp := FitmentResponse{Fitment: rec}
	if rec != nil {
		req := fitment.ExtractRequirements(rec)
		resp.Requirements = &req
	}
	if resp.Maestro, err = s.resolver.Maestro(r.Context(), sel); err != nil {
		s.sourceFailed(r.Context(), "maestro", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	f := recommend.Filters{
		Category: q.Get("category"),
		Location: q.Get("location"),
		Brand:    q.Get("brand"),
		Sort:     recommend.ParseSort(q.Get("sort")),
		Locale:   s.localeFor(r),
	}

	res, err := s.rec.Recommend(r.Context(), sel, f)
	if err != nil {
		// Only cancellation reaches here; source failures are already empty results.
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// selector reads year, make and model. A q parameter is parsed as free text
// and fills whichever of the three are not given explicitly.
func (s *server) selector(r *http.Request) (domain.Selector, error) {
	year, err := yearParam(r)
	if err != nil {
		return domain.Selector{}, err
	}
	q := r.URL.Query()
	sel := domain.Selector{Year: year, Make: q.Get("make"), Model: q.Get("model")}

	if text := strings.TrimSpace(q.Get("q")); text != "" && s.extractor != nil {
		if m := s.extractor.ExtractBest(text); m != nil {
			if sel.Year == 0 {
				sel.Year = m.Year
			}
			if sel.Make == "" {
				sel.Make = m.Make
			}
			if sel.Model == "" {
				sel.Model = m.Model
			}
		}
	}
	return sel, nil
}

// localeFor prefers the caller's Accept-Language over the configured locale.
func (s *server) localeFor(r *http.Request) language.Tag {
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		return tags[0]
	}
	return s.locale
}

func (s *server) sourceFailed(ctx context.Context, op string, err error) {
	s.logger.WarnContext(ctx, "fitment source failed", "op", op, "request_id", mid.RequestID(ctx), "error", err)
	s.metrics.SourceErrors("fitment").Inc()
}

// yearParam parses the year query parameter. Missing means zero.
func yearParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("year"))
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 0 {
		return 0, errInvalidYear
	}
	return year, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
