package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/attack"
	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/cache"
	"github.com/ppiankov/aem/internal/contradiction"
	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/gate"
	"github.com/ppiankov/aem/internal/governor"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/lifecycle"
	"github.com/ppiankov/aem/internal/llm"
	"github.com/ppiankov/aem/internal/market"
	"github.com/ppiankov/aem/internal/metrics"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/portfolio"
	"github.com/ppiankov/aem/internal/project"
	"github.com/ppiankov/aem/internal/question"
	"github.com/ppiankov/aem/internal/reopen"
	"github.com/ppiankov/aem/internal/schema"
	"github.com/ppiankov/aem/internal/store"
	"github.com/ppiankov/aem/internal/synthesis"
	"github.com/ppiankov/aem/internal/triage"
)

// Stage names in execution order
const (
	StageSchemaEnsure   = "schema-ensure"
	StageLedgerUpgrade  = "ledger-upgrade"
	StageQuestionGraph  = "question-graph"
	StageEvidenceIndex  = "evidence-index"
	StageTriage         = "triage"
	StageContradiction  = "contradiction-linker"
	StageAttack         = "attack-generator"
	StageGate           = "falsification-gate"
	StageMarket         = "market-scorer"
	StagePortfolio      = "portfolio-scorer"
	StageEpisodeMetrics = "episode-metrics"
	StageReopenCheck    = "reopen-check"
	StageSynthesis      = "synthesis-contract"
)

// ErrProjectNotFound is returned when a project id resolves to no directory
var ErrProjectNotFound = errors.New("project not found")

// Pipeline orchestrates one settlement run per project
type Pipeline struct {
	config   *model.Config
	registry *schema.Registry
	client   llm.Client // nil when no LLM provider is configured
	cache    cache.Cache
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a pipeline
type Option func(*Pipeline)

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLLMClient replaces the provider built from configuration
func WithLLMClient(client llm.Client) Option {
	return func(p *Pipeline) { p.client = client }
}

// WithClock sets the time source used for run timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline with the given configuration
func New(cfg *model.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	p := &Pipeline{
		config: cfg,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	client, err := llm.NewClient(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	p.client = client

	for _, opt := range opts {
		opt(p)
	}

	if cfg.Cache.Enabled && p.client != nil {
		lc := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		if n, err := lc.Prune(); err != nil {
			p.logger.Warn("llm cache prune failed", zap.String("dir", cfg.Cache.Dir), zap.Error(err))
		} else if n > 0 {
			p.logger.Debug("expired llm cache entries removed", zap.Int("entries", n))
		}
		p.cache = lc
	}
	p.registry = schema.NewRegistry(cfg.GlobalSchemaPath, p.logger)
	return p, nil
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() *model.Config {
	return p.config
}

// Layout resolves a project id against the configured projects root
func (p *Pipeline) Layout(projectID string) project.Layout {
	return project.Resolve(p.config.ProjectsRoot, projectID)
}

// run carries the state handed from one stage to the next
type run struct {
	id      string
	layout  project.Layout
	project *model.Project
	mode    model.EnforcementMode
	machine *lifecycle.Machine
	audit   *audit.Log
	oracle  budget.Oracle
	client  *llm.BudgetedClient
	gov     *governor.Governor
	logger  *zap.Logger

	schema      *schema.Schema
	findings    []model.Finding
	sources     []model.SourceRecord
	reliability map[string]float64
	graph       model.QuestionGraph
	index       *evidence.Index
	selection   []triage.Score
	attacks     []model.Attack
	gated       gate.Result

	result *model.SettleResult
}

// Settle runs every settlement stage for a project
func (p *Pipeline) Settle(ctx context.Context, projectID string) (*model.SettleResult, error) {
	return p.settle(ctx, projectID, nil)
}

// SettleAndValidate runs the settlement stages and then checks report against
// the synthesis contract unless synthesis is blocked
func (p *Pipeline) SettleAndValidate(ctx context.Context, projectID, report string) (*model.SettleResult, error) {
	return p.settle(ctx, projectID, &report)
}

func (p *Pipeline) settle(ctx context.Context, projectID string, report *string) (*model.SettleResult, error) {
	r, err := p.begin(projectID)
	if err != nil {
		return &model.SettleResult{ProjectID: projectID, Steps: []string{}, Error: err.Error()}, err
	}
	r.audit.Record(audit.EventRunStart, "", fmt.Sprintf("project=%s mode=%s", r.layout.ID(), r.mode), nil)

	stages := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StageSchemaEnsure, p.ensureSchema},
		{StageLedgerUpgrade, p.upgradeLedger},
		{StageQuestionGraph, p.buildQuestions},
		{StageEvidenceIndex, p.buildEvidence},
		{StageTriage, p.triage},
		{StageContradiction, p.linkContradictions},
		{StageAttack, p.generateAttacks},
		{StageGate, p.gate},
		{StageMarket, p.settleMarket},
		{StagePortfolio, p.scorePortfolio},
		{StageEpisodeMetrics, p.recordEpisode},
	}
	if p.config.Reopen.Check {
		stages = append(stages, struct {
			name string
			fn   func(context.Context, *run) error
		}{StageReopenCheck, p.checkReopen})
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return p.abort(r, s.name, err)
		}
		if fatal := p.runStage(ctx, r, s.name, s.fn); fatal != nil {
			return p.abort(r, s.name, fatal)
		}
	}

	if err := p.computeRates(r); err != nil {
		return p.abort(r, "rates", err)
	}
	r.result.BlockSynthesize = blockSynthesize(r.mode, r.result, p.config.Thresholds)

	if report != nil {
		if r.result.BlockSynthesize {
			r.audit.Record(audit.EventSynthesisChecked, StageSynthesis, "skipped: synthesis blocked", nil)
		} else if fatal := p.runStage(ctx, r, StageSynthesis, func(ctx context.Context, r *run) error {
			return p.validateReport(r, *report)
		}); fatal != nil {
			return p.abort(r, StageSynthesis, fatal)
		}
	}

	r.audit.Record(audit.EventRunFinish, "", fmt.Sprintf("ok=%t block_synthesize=%t", r.result.OK, r.result.BlockSynthesize), nil)
	r.logger.Info("settlement finished",
		zap.Bool("ok", r.result.OK),
		zap.Float64("oracle_integrity_rate", r.result.OracleIntegrityRate),
		zap.Float64("deadlock_rate", r.result.DeadlockRate),
		zap.Float64("tentative_convergence_rate", r.result.TentativeConvergenceRate),
		zap.Bool("block_synthesize", r.result.BlockSynthesize))
	if lc, ok := p.cache.(*cache.LayeredCache); ok {
		r.logger.Debug("llm cache", zap.Any("stats", lc.Stats()))
	}
	return r.result, nil
}

// begin resolves the project and builds the per-run collaborators
func (p *Pipeline) begin(projectID string) (*run, error) {
	layout := p.Layout(projectID)
	if info, err := os.Stat(layout.Root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, layout.Root)
	}

	proj, err := project.LoadProject(layout)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := p.logger.With(zap.String("project", layout.ID()), zap.String("run_id", id))

	mode := p.config.EnforcementMode
	if override, ok := model.ParseEnforcementMode(proj.Config.EnforcementMode); ok && proj.Config.EnforcementMode != "" {
		mode = override
	}
	if _, ok := model.ParseEnforcementMode(string(mode)); !ok {
		logger.Warn("unknown enforcement mode, using observe", zap.String("mode", string(mode)))
		mode = model.ModeObserve
	}

	log := audit.NewLog(layout.AuditLog(), id, logger)
	oracle := budget.NewFileOracle(layout.BudgetUsage(), proj.Config.BudgetLimit)
	client := llm.Wrap(p.client, llm.Options{
		Cache:             p.cache,
		CacheTTL:          p.config.Cache.DiskTTL,
		RequestsPerSecond: p.config.LLM.RequestsPerSecond,
		Burst:             p.config.LLM.Burst,
		Oracle:            oracle,
		Logger:            logger,
	})

	empty := evidence.NewBuilder(nil, logger).Build(evidence.Input{})
	return &run{
		id:      id,
		layout:  layout,
		project: proj,
		mode:    mode,
		machine: lifecycle.NewMachine(ledger.NewStore(layout.Ledger()), log, logger),
		audit:   log,
		oracle:  oracle,
		client:  client,
		gov:     governor.New(p.config.Governor, oracle, logger),
		logger:  logger,
		schema:  schema.Default(),
		index:   empty,
		result: &model.SettleResult{
			OK:                       true,
			ProjectID:                layout.ID(),
			RunID:                    id,
			Steps:                    []string{},
			OracleIntegrityRate:      1.0,
			TentativeConvergenceRate: 1.0,
			EnforcementMode:          mode,
		},
	}, nil
}

// runStage executes one stage and applies the error policy. Only errors that
// must stop the run are returned.
func (p *Pipeline) runStage(ctx context.Context, r *run, name string, fn func(context.Context, *run) error) error {
	start := time.Now()
	r.audit.Record(audit.EventStageStart, name, "", nil)
	r.result.Steps = append(r.result.Steps, name)

	err := fn(ctx, r)
	if err == nil {
		r.audit.Record(audit.EventStageFinish, name, time.Since(start).Round(time.Millisecond).String(), nil)
		r.logger.Debug("stage finished", zap.String("stage", name), zap.Duration("took", time.Since(start)))
		return nil
	}

	r.audit.Record(audit.EventStageError, name, "", err)
	r.result.OK = false
	r.result.StageErrors = append(r.result.StageErrors, model.StageError{Stage: name, Error: err.Error()})
	if r.result.Error == "" {
		r.result.Error = fmt.Sprintf("%s: %v", name, err)
	}

	var cerr *synthesis.ContractError
	if store.IsStorageError(err) || (errors.As(err, &cerr) && r.mode != model.ModeObserve) {
		return err
	}
	r.logger.Warn("stage failed", zap.String("stage", name), zap.Error(err))
	return nil
}

// abort ends the run after a fatal stage error. In observe the failure is
// reported in the result only; other modes also return it.
func (p *Pipeline) abort(r *run, stage string, err error) (*model.SettleResult, error) {
	r.result.OK = false
	if r.result.Error == "" {
		r.result.Error = fmt.Sprintf("%s: %v", stage, err)
	}
	r.result.BlockSynthesize = r.mode != model.ModeObserve
	r.audit.Record(audit.EventRunFinish, stage, "aborted", err)
	r.logger.Error("settlement aborted", zap.String("stage", stage), zap.Error(err))

	if r.mode == model.ModeObserve {
		return r.result, nil
	}
	return r.result, fmt.Errorf("%s: %w", stage, err)
}

func (p *Pipeline) ensureSchema(_ context.Context, r *run) error {
	if err := p.registry.EnsureProject(r.layout, p.registry.GlobalPath() != ""); err != nil {
		return err
	}
	s, err := p.registry.LoadForProject(r.layout)
	if err != nil {
		return err
	}
	r.schema = s
	return nil
}

func (p *Pipeline) upgradeLedger(_ context.Context, r *run) error {
	rows, err := project.LoadVerifyLedger(r.layout)
	if err != nil {
		return err
	}
	created, err := r.machine.UpgradeVerifyLedger(rows, lifecycle.UpgradeOptions{
		Outcome:      r.schema.DefaultClaimOutcome,
		TentativeTTL: p.config.Gate.InitialTentativeTTL,
	})
	if err != nil {
		return err
	}
	if created > 0 {
		r.logger.Info("ledger upgraded from verify claims", zap.Int("claims", created))
	}
	return nil
}

func (p *Pipeline) buildQuestions(_ context.Context, r *run) error {
	findings, err := project.LoadFindings(r.layout, r.logger)
	if err != nil {
		return err
	}
	r.findings = findings

	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	var linked []question.LinkedClaim
	if len(claims) > 0 {
		linked = question.FromLedger(ledger.Latest(claims))
	} else {
		rows, err := project.LoadVerifyLedger(r.layout)
		if err != nil {
			return err
		}
		linked = question.FromVerify(rows)
	}

	previous, err := question.Load(r.layout.Questions())
	if err != nil {
		return err
	}
	r.graph = question.NewBuilder(r.logger).Build(r.project, linked, len(findings), previous)
	return question.Save(r.layout.Questions(), r.graph)
}

func (p *Pipeline) buildEvidence(_ context.Context, r *run) error {
	sources, err := project.LoadSources(r.layout, r.logger)
	if err != nil {
		return err
	}
	reliability, err := project.LoadReliability(r.layout)
	if err != nil {
		return err
	}
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	r.sources = sources
	r.reliability = reliability

	classifier := evidence.NewAuthorityClassifier(&p.config.Authority)
	r.index = evidence.NewBuilder(classifier, r.logger).Build(evidence.Input{
		Findings:    r.findings,
		Sources:     sources,
		Claims:      ledger.Latest(claims),
		Reliability: reliability,
	})
	return evidence.Save(r.layout.EvidenceIndex(), r.index)
}

func (p *Pipeline) triage(_ context.Context, r *run) error {
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	var linked []string
	for _, q := range r.graph.Questions {
		linked = append(linked, q.LinkedClaims...)
	}
	r.selection = triage.NewScorer(linked).Select(ledger.Latest(claims), p.config.Triage.TopK)
	r.logger.Info("claims selected", zap.Int("selected", len(r.selection)))
	return nil
}

func (p *Pipeline) linkContradictions(ctx context.Context, r *run) error {
	detectors := []contradiction.Detector{contradiction.NewFileDetector(r.layout.Contradictions())}
	if r.client != nil {
		d, err := p.route(ctx, r, governor.TaskContradiction, 2000)
		if err != nil {
			return err
		}
		if d.BudgetOK {
			detectors = append(detectors, contradiction.NewLLMDetector(r.client, d.Model, r.logger))
		}
	}

	linker := contradiction.NewLinker(contradiction.NewChainDetector(r.logger, detectors...), p.config.Contradiction.DefaultStrength, r.logger)
	res, err := linker.Link(ctx, r.machine, r.index, contradiction.Input{
		ProjectID: r.layout.ID(),
		Project:   r.project,
		Findings:  r.findings,
	})
	if res.BudgetExhausted {
		r.audit.Record(audit.EventBudgetExceeded, StageContradiction, "contradiction detection stopped", nil)
	}
	return err
}

func (p *Pipeline) generateAttacks(ctx context.Context, r *run) error {
	var defender attack.Defender
	if p.config.Attack.Defend {
		defender = attack.NewEvidenceDefender(r.index)
		if r.client != nil {
			d, err := p.route(ctx, r, governor.TaskFalsification, 500*len(r.selection))
			if err != nil {
				return err
			}
			if d.BudgetOK {
				defender = attack.NewLLMDefender(r.client, d.Model, r.layout.ID(), defender, r.logger)
			}
		}
	}

	stage := attack.NewStage(
		attack.NewGenerator(p.config.Attack),
		defender,
		attack.NewJournal(r.layout.Attacks()),
		r.logger,
	)
	res, err := stage.Run(ctx, r.machine, r.id, triage.Refs(r.selection))
	if err != nil {
		return err
	}
	r.attacks = res.Emitted
	return nil
}

func (p *Pipeline) gate(_ context.Context, r *run) error {
	g := gate.New(r.schema, r.index, p.config.Gate, r.logger)
	res, err := g.Run(r.machine, attack.GroupByRef(r.attacks, r.id))
	if err != nil {
		return err
	}
	r.gated = res
	return nil
}

func (p *Pipeline) settleMarket(_ context.Context, r *run) error {
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	_, err = market.NewScorer(r.schema, r.logger).Run(r.layout.Settlements(), ledger.Latest(claims))
	return err
}

func (p *Pipeline) scorePortfolio(_ context.Context, r *run) error {
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	state := portfolio.NewScorer().Calculate(ledger.Latest(claims), r.index)
	state.UpdatedAt = p.now()
	return portfolio.Save(r.layout.Portfolio(), state)
}

func (p *Pipeline) recordEpisode(_ context.Context, r *run) error {
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	settlements, err := market.Load(r.layout.Settlements())
	if err != nil {
		return err
	}
	previous, err := metrics.Last(r.layout.EpisodeMetrics())
	if err != nil {
		return err
	}

	rec := metrics.Compute(metrics.Input{
		RunID:         r.id,
		Mode:          metrics.ModeFor(r.project.Config.QuestionType),
		Claims:        ledger.Latest(claims),
		Settlements:   settlements,
		Attacks:       r.attacks,
		EvidenceCount: r.index.Len(),
		TokensSpent:   r.client.TokensSpent(),
		Previous:      previous,
	}, p.now())
	return metrics.Append(r.layout.EpisodeMetrics(), rec)
}

func (p *Pipeline) checkReopen(_ context.Context, r *run) error {
	claims, err := r.machine.Store().Load()
	if err != nil {
		return err
	}
	triggers := reopen.Check(claims)
	if len(triggers) == 0 {
		return nil
	}
	_, err = reopen.New(r.machine, r.audit, r.logger).Apply(triggers)
	return err
}

func (p *Pipeline) validateReport(r *run, report string) error {
	_, err := synthesis.NewEnforcer(r.layout, r.mode, r.audit, r.logger).Apply(report)
	return err
}

// route asks the governor for a lane using the current triage selection
func (p *Pipeline) route(ctx context.Context, r *run, task string, tokens int) (governor.Decision, error) {
	density := 0.0
	if claims, err := r.machine.Store().Load(); err == nil {
		density = portfolio.NewScorer().Calculate(ledger.Latest(claims), r.index).EvidenceDensity
	}
	d, err := r.gov.Route(ctx, governor.Task{
		Kind:            task,
		ProjectID:       r.layout.ID(),
		Fragilities:     triage.Fragilities(r.selection),
		Relevances:      triage.Relevances(r.selection),
		EvidenceDensity: density,
		ExpectedTokens:  tokens,
	})
	if err != nil {
		return d, err
	}
	if !d.BudgetOK {
		r.audit.Record(audit.EventBudgetExceeded, task, "routing refused by budget oracle", nil)
	}
	return d, nil
}

// computeRates fills the three project-level rates
func (p *Pipeline) computeRates(r *run) error {
	settlements, err := market.Load(r.layout.Settlements())
	if err != nil {
		return err
	}
	r.result.OracleIntegrityRate = round4(market.IntegrityRate(settlements))
	r.result.DeadlockRate = round4(DeadlockRate(r.gated))
	r.result.TentativeConvergenceRate = round4(ConvergenceRate(r.gated))
	return nil
}

// DeadlockRate is deadlock exits over gated claims, 0 when nothing was gated
func DeadlockRate(res gate.Result) float64 {
	if res.Gated == 0 {
		return 0
	}
	return float64(res.Deadlocks) / float64(res.Gated)
}

// ConvergenceRate is the share of gated claims not left tentative, 1.0 when
// nothing was gated
func ConvergenceRate(res gate.Result) float64 {
	if res.Gated == 0 {
		return 1.0
	}
	return float64(res.Gated-res.ByStatus[model.PassTentative]) / float64(res.Gated)
}

// ThresholdFailures lists every project-level threshold the result misses
func ThresholdFailures(res *model.SettleResult, t model.ThresholdConfig) []string {
	var out []string
	if res.OracleIntegrityRate < t.OracleIntegrityMin {
		out = append(out, fmt.Sprintf("oracle_integrity_rate %.4f < %.2f", res.OracleIntegrityRate, t.OracleIntegrityMin))
	}
	if res.DeadlockRate > t.DeadlockRateMax {
		out = append(out, fmt.Sprintf("deadlock_rate %.4f > %.2f", res.DeadlockRate, t.DeadlockRateMax))
	}
	if res.TentativeConvergenceRate < t.TentativeConvergenceMin {
		out = append(out, fmt.Sprintf("tentative_convergence_rate %.4f < %.2f", res.TentativeConvergenceRate, t.TentativeConvergenceMin))
	}
	return out
}

// blockSynthesize applies the enforcement mode. Observe never blocks; enforce
// blocks when a stage failed; strict also blocks on any missed threshold.
func blockSynthesize(mode model.EnforcementMode, res *model.SettleResult, t model.ThresholdConfig) bool {
	switch mode {
	case model.ModeStrict:
		return !res.OK || len(ThresholdFailures(res, t)) > 0
	case model.ModeEnforce:
		return !res.OK
	default:
		return false
	}
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
