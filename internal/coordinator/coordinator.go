// Package coordinator orchestrates the end-to-end request lifecycle:
// normalize the question, try a fast path, otherwise run the full
// plan/rewrite/guard/execute pipeline with its bounded retry and
// empty-result fallback, then summarize and format the answer.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/Aiuser8/thallos-llm-service/internal/executor"
	"github.com/Aiuser8/thallos-llm-service/internal/formatter"
	"github.com/Aiuser8/thallos-llm-service/internal/guard"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
	"github.com/Aiuser8/thallos-llm-service/internal/planner"
	"github.com/Aiuser8/thallos-llm-service/internal/rewriter"
)

// PlanCache is the narrow capability the Coordinator needs to memoize a
// planner reply keyed by normalized question, satisfied by
// *cache.PlanCache.
type PlanCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// llmCompleter is the narrow capability Summarize needs; satisfied by
// *llmclient.Client and by planner.ChatCompleter implementations alike.
type llmCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SchemaSource is the narrow slice of *schema.Registry the Coordinator
// and Guard need.
type SchemaSource interface {
	TablesAllowed() map[string]struct{}
	AllColumns() map[string]map[string]struct{}
	Doc() string
}

// Querier is the narrow capability the Coordinator needs from the
// Executor.
type Querier interface {
	Ping(ctx context.Context) error
	Execute(ctx context.Context, sql string) (executor.ResultSet, error)
}

// Response is the shape returned to the HTTP layer, which decides how
// much of it to serialize based on the request's minimal flag.
type Response struct {
	OK     bool           `json:"ok"`
	Answer string         `json:"answer"`
	SQL    string         `json:"sql,omitempty"`
	Rows   []executor.Row `json:"rows,omitempty"`
}

// Coordinator wires the schema registry, planner, rewriter, guard, and
// executor into the six-step pipeline.
type Coordinator struct {
	schema          SchemaSource
	exec            Querier
	planner         *planner.Planner
	fallbackPlanner *planner.FallbackPlanner
	llm             llmCompleter
	rewriterCfg     rewriter.Config
	maxLimit        int
	planCache       PlanCache
	planCacheTTL    time.Duration
}

// Config carries every dependency the Coordinator needs. Planner may be
// nil to force degraded (FallbackPlanner-only) mode.
type Config struct {
	Schema          SchemaSource
	Executor        Querier
	Planner         *planner.Planner
	FallbackPlanner *planner.FallbackPlanner
	LLM             llmCompleter
	RewriterConfig  rewriter.Config
	MaxLimit        int
	PlanCache       PlanCache
	PlanCacheTTL    time.Duration
}

// New builds a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		schema:          cfg.Schema,
		exec:            cfg.Executor,
		planner:         cfg.Planner,
		fallbackPlanner: cfg.FallbackPlanner,
		llm:             cfg.LLM,
		rewriterCfg:     cfg.RewriterConfig,
		maxLimit:        cfg.MaxLimit,
		planCache:       cfg.PlanCache,
		planCacheTTL:    cfg.PlanCacheTTL,
	}
}

// Handle runs the full per-request pipeline for a single question. Any
// failure that happens after the caller's context has expired or been
// canceled is reported as ErrTypeDeadlineExceeded rather than whatever
// underlying error (execution failure, LLM failure, ...) the cancellation
// produced downstream, so httpapi can map it to 504 instead of 500.
func (c *Coordinator) Handle(ctx context.Context, question string) (Response, error) {
	resp, err := c.handle(ctx, question)
	if err != nil && ctx.Err() != nil {
		return Response{}, gwerrors.DeadlineExceeded(err)
	}

	return resp, err
}

func (c *Coordinator) handle(ctx context.Context, question string) (Response, error) {
	normalized := NormalizeQuestion(question)

	if err := c.exec.Ping(ctx); err != nil {
		return Response{}, gwerrors.Wrap(err, gwerrors.ErrTypeDatabaseUnavail, "database liveness probe failed")
	}

	if fp, matched := MatchFastPath(normalized); matched {
		return c.runGuardedQuery(ctx, normalized, fp.SQL)
	}

	plan, err := c.firstPlan(ctx, normalized)
	if err != nil {
		return Response{}, err
	}

	return c.runPipeline(ctx, normalized, plan)
}

func (c *Coordinator) firstPlan(ctx context.Context, question string) (planner.Plan, error) {
	if c.planner == nil {
		return c.fallbackPlanner.Plan(question), nil
	}

	cacheKey := planCacheKey(question)

	if c.planCache != nil {
		if cached, err := c.planCache.Get(ctx, cacheKey); err == nil {
			var plan planner.Plan
			if json.Unmarshal(cached, &plan) == nil {
				return plan, nil
			}
		}
	}

	plan, err := c.planner.Plan(ctx, question, c.schema.Doc())
	if err != nil {
		return planner.Plan{}, err
	}

	if c.planCache != nil {
		if data, err := json.Marshal(plan); err == nil {
			_ = c.planCache.Set(ctx, cacheKey, data, c.planCacheTTL)
		}
	}

	return plan, nil
}

// planCacheKey derives a filesystem-safe memoization key from the
// normalized question. A cached plan is only ever a starting point — it
// still passes through the HeuristicRewriter and Guard on every request.
func planCacheKey(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}

func (c *Coordinator) runPipeline(ctx context.Context, question string, plan planner.Plan) (Response, error) {
	rewritten := rewriter.Rewrite(plan.SQL, question, c.rewriterCfg)

	guarded, err := guard.Guard(rewritten, c.schema.TablesAllowed(), c.schema.AllColumns(), c.maxLimit)
	if err != nil {
		return Response{}, guardRejection(rewritten, err)
	}

	result, execErr := c.exec.Execute(ctx, guarded.SQL)
	if execErr != nil {
		return c.handleExecutionFailure(ctx, question, guarded.SQL, execErr)
	}

	result = c.applyEmptyResultFallback(ctx, guarded.SQL, result)

	return c.buildResponse(ctx, question, guarded.SQL, result), nil
}

func (c *Coordinator) handleExecutionFailure(ctx context.Context, question, sql string, execErr error) (Response, error) {
	msg := execErr.Error()

	if e, ok := execErr.(*gwerrors.Error); ok && e.Cause != nil {
		msg = e.Cause.Error()
	}

	if !planner.Recoverable(msg) {
		return Response{}, execErr
	}

	if c.planner == nil {
		return Response{}, gwerrors.RetryExhausted(sql, execErr)
	}

	retryPlan, err := c.planner.Retry(ctx, question, c.schema.Doc(), sql, msg)
	if err != nil {
		return Response{}, err
	}

	rewritten := rewriter.Rewrite(retryPlan.SQL, question, c.rewriterCfg)

	guarded, err := guard.Guard(rewritten, c.schema.TablesAllowed(), c.schema.AllColumns(), c.maxLimit)
	if err != nil {
		return Response{}, guardRejection(rewritten, err)
	}

	result, err := c.exec.Execute(ctx, guarded.SQL)
	if err != nil {
		return Response{}, gwerrors.RetryExhausted(guarded.SQL, err)
	}

	result = c.applyEmptyResultFallback(ctx, guarded.SQL, result)

	return c.buildResponse(ctx, question, guarded.SQL, result), nil
}

func (c *Coordinator) applyEmptyResultFallback(ctx context.Context, sql string, result executor.ResultSet) executor.ResultSet {
	if len(result.Rows) != 0 {
		return result
	}

	stripped, ok := StripTimeFilter(sql)
	if !ok {
		return result
	}

	fallbackResult, err := c.exec.Execute(ctx, stripped)
	if err != nil {
		logging.Warnf("empty-result fallback execution failed: %v", err)
		return result
	}

	return fallbackResult
}

func (c *Coordinator) runGuardedQuery(ctx context.Context, question, sql string) (Response, error) {
	guarded, err := guard.Guard(sql, c.schema.TablesAllowed(), c.schema.AllColumns(), c.maxLimit)
	if err != nil {
		return Response{}, guardRejection(sql, err)
	}

	result, err := c.exec.Execute(ctx, guarded.SQL)
	if err != nil {
		return Response{}, err
	}

	result = c.applyEmptyResultFallback(ctx, guarded.SQL, result)

	return c.buildResponse(ctx, question, guarded.SQL, result), nil
}

func (c *Coordinator) buildResponse(ctx context.Context, question, sql string, result executor.ResultSet) Response {
	summary := Summarize(ctx, c.llm, question, result.Rows)
	answer := formatter.Format(summary, question)

	return Response{
		OK:     true,
		Answer: answer,
		SQL:    sql,
		Rows:   result.Rows,
	}
}

func guardRejection(sql string, err error) error {
	gerr, ok := err.(*guard.Error)
	if !ok {
		return gwerrors.Newf(gwerrors.ErrTypeInternal, "unexpected guard error: %v", err)
	}

	return gwerrors.GuardRejection(string(gerr.Kind), gerr.Error(), sql)
}
