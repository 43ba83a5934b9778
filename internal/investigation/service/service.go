// Package service orchestrates one investigation: validate, gather evidence,
// assemble the context, consult the oracle, resolve the report and persist it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"diligence/internal/audit"
	"diligence/internal/evidence/fanout"
	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/assembler"
	"diligence/internal/investigation/metrics"
	"diligence/internal/investigation/models"
	"diligence/internal/investigation/report"
	"diligence/internal/sector"
	dErrors "diligence/pkg/domain-errors"
	"diligence/pkg/platform/sentinel"
	"diligence/pkg/requestcontext"
)

var tracer = otel.Tracer("diligence/investigation/service")

const (
	defaultListLimit = 20
	maxListLimit     = 100
	persistTimeout   = 5 * time.Second
)

// Store persists finished investigations.
type Store interface {
	Save(ctx context.Context, inv *models.Investigation) error
	FindByID(ctx context.Context, id string) (*models.Investigation, error)
	List(ctx context.Context, limit int) ([]models.Summary, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Gatherer runs evidence tasks and returns one outcome per task.
type Gatherer interface {
	Run(ctx context.Context, tasks []fanout.Task) []sources.Outcome
}

// Assessor consults the risk oracle. Errors are oracle unavailability.
type Assessor interface {
	Assess(ctx context.Context, ec assembler.EvidenceContext, res sector.Resolution) (string, error)
}

// Classifier settles an undeclared sector before the assessment call.
type Classifier interface {
	Classify(ctx context.Context, evidence string, fallback sector.Resolution) sector.Resolution
}

// Service runs investigations.
type Service struct {
	store      Store
	gatherer   Gatherer
	planner    *Planner
	assembler  *assembler.Assembler
	assessor   Assessor
	parser     *report.Parser
	classifier Classifier
	audit      AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	newID      func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAssembler replaces the default-budget assembler.
func WithAssembler(a *assembler.Assembler) Option {
	return func(s *Service) {
		s.assembler = a
	}
}

// WithClassifier enables sector pre-classification for requests that do not
// declare a sector.
func WithClassifier(c Classifier) Option {
	return func(s *Service) {
		s.classifier = c
	}
}

// WithTimeout bounds a whole investigation. Persistence gets its own budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithIDGenerator overrides uuid.NewString, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(store Store, gatherer Gatherer, planner *Planner, assessor Assessor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gatherer:  gatherer,
		planner:   planner,
		assessor:  assessor,
		assembler: assembler.New(assembler.DefaultBudget),
		parser:    report.NewParser(),
		audit:     audit.NopPublisher{},
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Investigate runs the pipeline. The only error a caller sees for a valid
// request is an internal one; source and oracle failures end in a report.
// An invalid request is rejected with CodeValidation before any source is
// queried.
func (s *Service) Investigate(ctx context.Context, req models.Request) (*models.Investigation, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "investigation.run")
	defer span.End()

	inv := models.NewInvestigation(s.newID(), req.Normalized(), requestcontext.Now(ctx))
	inv.RequestID = requestcontext.RequestID(ctx)
	span.SetAttributes(attribute.String("investigation_id", inv.ID))
	logger := s.logger.With("investigation_id", inv.ID, "request_id", inv.RequestID)

	if err := req.Validate(); err != nil {
		_ = inv.Transition(models.StateAborted, time.Now())
		span.SetStatus(codes.Error, "invalid request")
		s.metrics.IncrementRejected()
		logger.InfoContext(ctx, "investigation rejected", "reason", dErrors.MessageOf(err))
		s.emit(ctx, logger, audit.Event{
			Action:          audit.ActionInvestigationRejected,
			InvestigationID: inv.ID,
			Subject:         inv.Request.Name,
			Reason:          dErrors.MessageOf(err),
			RequestID:       inv.RequestID,
			Client:          requestcontext.Client(ctx),
		})
		return nil, err
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.run(runCtx, logger, inv); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "investigation failed")
	}

	s.persist(ctx, logger, inv)

	rep := inv.Report
	span.SetAttributes(
		attribute.String("risk_level", string(rep.RiskLevel)),
		attribute.Bool("fallback", rep.Fallback),
		attribute.Bool("persisted", inv.Persisted),
	)
	s.metrics.ObserveReport(rep.Fallback, string(rep.RiskLevel), time.Since(start))
	logger.InfoContext(ctx, "investigation completed",
		"state", inv.State,
		"sector", rep.Leniency.Sector,
		"risk_level", rep.RiskLevel,
		"risk_score", rep.RiskScore,
		"fallback", rep.Fallback,
		"duration", time.Since(start),
	)
	s.emit(ctx, logger, audit.Event{
		Action:          audit.ActionInvestigationCompleted,
		InvestigationID: inv.ID,
		Subject:         inv.Request.Name,
		Sector:          string(rep.Leniency.Sector),
		RiskLevel:       string(rep.RiskLevel),
		RiskScore:       rep.RiskScore,
		Fallback:        rep.Fallback,
		Reason:          rep.FallbackReason,
		RequestID:       inv.RequestID,
		Client:          requestcontext.Client(ctx),
	})
	return inv, nil
}

// run drives the investigation from created to parsed or fallback_applied.
func (s *Service) run(ctx context.Context, logger *slog.Logger, inv *models.Investigation) error {
	req := inv.Request
	res := sector.Resolve(req.Sector)

	if err := inv.Transition(models.StateSourcesGathering, time.Now()); err != nil {
		return err
	}
	tasks := s.planner.Plan(req)
	outcomes := s.gatherer.Run(ctx, tasks)
	inv.Outcomes = make([]models.OutcomeSummary, len(outcomes))
	for i, o := range outcomes {
		inv.Outcomes[i] = models.SummarizeOutcome(o)
	}
	logger.DebugContext(ctx, "evidence gathered", "tasks", len(tasks))

	if err := inv.Transition(models.StateContextAssembled, time.Now()); err != nil {
		return err
	}
	ec := s.assembler.Assemble(req, outcomes, res)
	meta := report.Meta{Resolution: res}
	if s.classifier != nil && undeclared(res) {
		if classified := s.classifier.Classify(ctx, ec.Text, res); classified.Key() != sector.General {
			ec = ec.WithPolicy(classified)
			meta = report.Meta{Resolution: classified, Preclassified: true}
		}
	}

	if err := inv.Transition(models.StateAwaitingOracle, time.Now()); err != nil {
		return err
	}
	raw, oracleErr := s.assessor.Assess(ctx, ec, meta.Resolution)
	result := s.parser.Resolve(raw, oracleErr, meta)
	if !result.Parsed {
		logger.WarnContext(ctx, "fallback report applied", "error", result.Err)
	}
	return inv.ApplyReport(result.Report, time.Now())
}

func undeclared(res sector.Resolution) bool {
	return res.Key() == sector.General && (res.AutoDetect || res.Requested == "")
}

// persist saves a copy in the persisted state and adopts it only when the
// write succeeds. A failed write leaves the report intact with Persisted
// false.
func (s *Service) persist(ctx context.Context, logger *slog.Logger, inv *models.Investigation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	saved := *inv
	saved.History = append([]models.Transition(nil), inv.History...)
	if err := saved.Transition(models.StatePersisted, time.Now()); err != nil {
		logger.ErrorContext(ctx, "cannot persist investigation", "state", inv.State, "error", err)
		return
	}
	saved.Persisted = true
	if err := s.store.Save(ctx, &saved); err != nil {
		s.metrics.IncrementPersistFailure()
		logger.ErrorContext(ctx, "failed to persist report", "error", err)
		return
	}
	*inv = saved
}

// Get loads a persisted investigation.
func (s *Service) Get(ctx context.Context, id string) (*models.Investigation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid investigation id")
	}
	inv, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "investigation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load investigation")
	}
	return inv, nil
}

// List returns the most recent investigations, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.Summary, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	out, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list investigations")
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, logger *slog.Logger, event audit.Event) {
	if err := s.audit.Emit(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
