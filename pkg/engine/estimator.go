package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
	"github.com/constrictor/constrictor/pkg/policy"
	"github.com/constrictor/constrictor/pkg/telemetry"
)

// Operation names used in errors and duration metrics.
const (
	OperationApplyConstraints = "apply_constraints"
	OperationEstimate         = "estimate"
	OperationVerify           = "verify"
)

// Estimator narrows forms and costs requests against a dataset catalogue.
// It is safe for concurrent use.
type Estimator struct {
	catalogue Catalogue
	policies  PolicyEvaluator
	scripts   costing.ScriptEvaluator
	telemetry *telemetry.Telemetry
	config    Config
	validate  *validator.Validate
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithPolicyEvaluator sets the admission policies. Without one only the hard
// cost maxima decide whether a request is allowed.
func WithPolicyEvaluator(p PolicyEvaluator) Option {
	return func(e *Estimator) {
		e.policies = p
	}
}

// WithScriptEvaluator replaces the Starlark evaluator of scripted cost units.
func WithScriptEvaluator(s costing.ScriptEvaluator) Option {
	return func(e *Estimator) {
		e.scripts = s
	}
}

// WithTelemetry sets the telemetry used when the request context carries none.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Estimator) {
		e.telemetry = t
	}
}

// WithConfig sets the estimator configuration.
func WithConfig(cfg Config) Option {
	return func(e *Estimator) {
		e.config = cfg
	}
}

// NewEstimator creates an estimator over a catalogue.
func NewEstimator(cat Catalogue, opts ...Option) (*Estimator, error) {
	if cat == nil {
		return nil, NewPermanentError("catalogue is required", nil).WithCode(ErrCodeValidation)
	}

	e := &Estimator{
		catalogue: cat,
		scripts:   catalogue.NewStarlarkEvaluator(0),
		telemetry: telemetry.Nop(),
		config:    DefaultConfig(),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, NewPermanentError("invalid configuration", err).WithCode(ErrCodeValidation)
	}
	return e, nil
}

// withTelemetry makes sure the context carries telemetry.
func (e *Estimator) withTelemetry(ctx context.Context) context.Context {
	if telemetry.FromTelemetryContext(ctx) != nil {
		return ctx
	}
	return e.telemetry.WithContext(ctx)
}

// resolve looks up a dataset and normalizes its form and constraints.
func (e *Estimator) resolve(ctx context.Context, datasetID string) (*catalogue.Resolved, error) {
	ds, err := e.catalogue.GetDataset(ctx, datasetID)
	if err != nil {
		if errors.Is(err, catalogue.ErrDatasetNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, NewTransientError("catalogue lookup failed", err).WithCode(ErrCodeInternal)
	}
	return ds.Resolve()
}

// ApplyConstraints returns the form state of a partial selection: for every
// form parameter the values still reachable, as sorted lists.
func (e *Estimator) ApplyConstraints(ctx context.Context, datasetID string, rawSelection map[string]interface{}) (state map[string][]string, err error) {
	ctx = e.withTelemetry(ctx)
	tel := telemetry.FromTelemetryContext(ctx)

	ic := telemetry.StartOperation(ctx, telemetry.SpanConstraintsApply,
		telemetry.AttrDatasetID.String(datasetID),
		telemetry.AttrSelectedKey.Int(len(rawSelection)))
	defer func() {
		err = classify(err, OperationApplyConstraints, datasetID)
		e.recordError(tel, err)
		ic.End(err)
	}()

	resolved, err := e.resolve(ic.Ctx, datasetID)
	if err != nil {
		return nil, err
	}

	selection, err := constraints.ParseSelection(rawSelection)
	if err != nil {
		return nil, err
	}

	state = constraints.ApplyConstraints(resolved.Form, selection, resolved.Records)

	tel.Metrics.RecordFormState(datasetID)
	if perr := tel.Events.PublishFormStateComputed("", datasetID, len(selection)); perr != nil {
		ic.Logger.WithError(perr).Warn("failed to publish form state event")
	}
	ic.Logger.Debugf("form state computed for %d selected parameters", len(selection))

	return state, nil
}

// EstimateCost counts the granules of a request, evaluates every cost unit of
// the dataset and, when configured, the admission policies. A selection that
// matches no data is not an error: the result has zero granules and is
// marked invalid.
func (e *Estimator) EstimateCost(ctx context.Context, req EstimateRequest) (result *EstimateResult, err error) {
	timer := telemetry.NewTimer()
	ctx = e.withTelemetry(ctx)
	tel := telemetry.FromTelemetryContext(ctx)

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	ctx = telemetry.WithRequestContext(ctx, req.RequestID, req.DatasetID)

	ic := telemetry.StartOperation(ctx, telemetry.SpanCostingEstimate,
		telemetry.AttrRequestID.String(req.RequestID),
		telemetry.AttrDatasetID.String(req.DatasetID),
		telemetry.AttrOrigin.String(req.Origin),
		telemetry.AttrSafe.Bool(e.config.Safe && !req.Unsafe))
	ic.Logger = ic.Logger.WithOrigin(req.Origin)
	defer func() {
		err = classify(err, OperationEstimate, req.DatasetID)
		if err != nil {
			tel.Metrics.RecordEstimate(req.DatasetID, req.Origin, telemetry.OutcomeFailed, 0)
			e.recordError(tel, err)
			ic.Logger.WithError(err).Warn("estimate failed")
		}
		ic.End(err)
	}()

	if verr := e.validate.Struct(req); verr != nil {
		return nil, NewPermanentError("invalid estimate request", verr).WithCode(ErrCodeValidation)
	}

	origin, err := costing.ParseOrigin(req.Origin)
	if err != nil {
		return nil, NewPermanentError("invalid estimate request", err).WithCode(ErrCodeValidation)
	}

	resolved, err := e.resolve(ic.Ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	selection, err := constraints.ParseSelection(req.Selection)
	if err != nil {
		return nil, err
	}

	info, err := costing.Compute(ic.Ctx, resolved.Form, selection, resolved.Records,
		resolved.Dataset.Costing, origin, e.scripts, e.costingOptions(req)...)
	if err != nil {
		return nil, err
	}

	cost := costing.HighestCostLimitRatio(*info)
	if verr := costing.CheckRequestValidity(resolved.Form, selection, info.Granules); verr != nil {
		cost.RequestIsValid = false
		cost.InvalidReason = verr.Error()
	}

	result = &EstimateResult{
		RequestID:        req.RequestID,
		DatasetID:        req.DatasetID,
		Origin:           origin,
		Granules:         info.Granules,
		Size:             info.Size,
		Costs:            info.Costs,
		Limits:           info.Limits,
		MaxCostsExceeded: info.MaxCostsExceeded,
		Cost:             cost,
		Request:          sortedSelection(selection),
	}

	ic.SetAttributes(
		telemetry.AttrGranules.Int64(info.Granules),
		telemetry.AttrCostID.String(cost.ID),
		telemetry.AttrCostRatio.Float64(finiteRatio(cost)))

	if e.policies != nil {
		result.Policy, err = e.evaluatePolicies(ic.Ctx, result, info)
		if err != nil {
			return nil, err
		}
	}

	result.Duration = timer.Duration()
	e.report(tel, ic.Logger, result)

	return result, nil
}

func (e *Estimator) costingOptions(req EstimateRequest) []costing.Option {
	return []costing.Option{
		costing.WithSafe(e.config.Safe && !req.Unsafe),
		costing.WithMaxGranules(e.config.MaxGranules),
	}
}

// evaluatePolicies runs the admission policies in their own span.
func (e *Estimator) evaluatePolicies(ctx context.Context, result *EstimateResult, info *costing.CostingInfo) (res *policy.Result, err error) {
	ic := telemetry.StartOperation(ctx, telemetry.SpanPolicyEvaluate,
		telemetry.AttrRequestID.String(result.RequestID),
		telemetry.AttrDatasetID.String(result.DatasetID))
	defer func() { ic.End(err) }()

	input := policy.NewEstimateInput(result.DatasetID, result.Origin, info, result.Request)
	input.RequestID = result.RequestID

	res, err = e.policies.EvaluateEstimate(ic.Ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewPermanentError("policy evaluation failed", err).WithCode(ErrCodeInternal)
	}

	ic.SetAttributes(
		telemetry.AttrAllowed.Bool(res.Allowed),
		telemetry.AttrViolations.Int(len(res.Violations)))
	return res, nil
}

// report records the outcome of a finished estimate.
func (e *Estimator) report(tel *telemetry.Telemetry, logger *telemetry.Logger, result *EstimateResult) {
	summary := telemetry.EstimateSummary{
		RequestID: result.RequestID,
		DatasetID: result.DatasetID,
		Origin:    string(result.Origin),
		Granules:  result.Granules,
		CostID:    result.Cost.ID,
		Cost:      result.Cost.Cost,
		Limit:     result.Cost.Limit,
		Allowed:   result.Allowed(),
		Reason:    result.Reason(),
		Request:   result.Request,
	}

	outcome := telemetry.OutcomeAccepted
	switch {
	case !summary.Allowed:
		outcome = telemetry.OutcomeRejected
	case !result.Cost.RequestIsValid:
		outcome = telemetry.OutcomeInvalid
	}
	tel.Metrics.RecordEstimate(result.DatasetID, string(result.Origin), outcome, result.Granules)

	var perr error
	if summary.Allowed {
		perr = tel.Events.PublishEstimateCompleted(summary)
	} else {
		for _, costID := range rejectedCostIDs(result) {
			tel.Metrics.RecordCostLimitRejection(result.DatasetID, costID)
		}
		if result.Policy != nil {
			for _, v := range result.Policy.Violations {
				if err := tel.Events.PublishPolicyViolation(result.RequestID, result.DatasetID, v.Policy, v.Message); err != nil {
					perr = err
				}
			}
		}
		if err := tel.Events.PublishEstimateRejected(summary); err != nil {
			perr = err
		}
	}
	if perr != nil {
		logger.WithError(perr).Warn("failed to publish estimate event")
	}

	logger.WithFields(map[string]interface{}{
		"granules": result.Granules,
		"cost_id":  result.Cost.ID,
		"allowed":  summary.Allowed,
		"duration": result.Duration.String(),
	}).Info("estimate completed")
}

// rejectedCostIDs lists the cost units blamed for a rejection.
func rejectedCostIDs(result *EstimateResult) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if result.Policy != nil {
		for _, v := range result.Policy.Violations {
			add(v.CostID)
		}
	}
	for _, exceeded := range result.MaxCostsExceeded {
		add(exceeded.ID)
	}
	return ids
}

// VerifyCost estimates a request and fails with ErrCodeCostLimitExceeded
// when it may not be submitted.
func (e *Estimator) VerifyCost(ctx context.Context, req EstimateRequest) (*EstimateResult, error) {
	result, err := e.EstimateCost(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Allowed() {
		return result, nil
	}

	verr := NewPermanentError("cost limits exceeded", errors.New(result.Reason())).
		WithCode(ErrCodeCostLimitExceeded).
		WithOperation(OperationVerify).
		WithDataset(result.DatasetID).
		WithDetail("request_id", result.RequestID)
	if ids := rejectedCostIDs(result); len(ids) > 0 {
		verr = verr.WithDetail("cost_ids", ids)
	}
	e.recordError(telemetry.FromTelemetryContext(e.withTelemetry(ctx)), verr)

	return result, verr
}

// EstimateBatch costs several requests concurrently. Results are returned in
// input order; a failing request does not stop the others. Only cancellation
// of ctx fails the whole batch.
func (e *Estimator) EstimateBatch(ctx context.Context, reqs []EstimateRequest) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.EstimateCost(gctx, reqs[i])
			results[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, classify(err, OperationEstimate, "")
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(err, OperationEstimate, "")
	}
	return results, nil
}

func (e *Estimator) recordError(tel *telemetry.Telemetry, err error) {
	if err == nil || tel == nil {
		return
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		tel.Metrics.RecordError(string(ee.Class), ee.Code)
		return
	}
	tel.Metrics.RecordError(string(ErrorClassPermanent), ErrCodeInternal)
}

func sortedSelection(selection constraints.Selection) map[string][]string {
	out := make(map[string][]string, len(selection))
	for k, v := range selection {
		out[k] = v.Sorted()
	}
	return out
}

// finiteRatio returns the cost ratio for span attributes, which cannot hold +Inf.
func finiteRatio(cost costing.RequestCost) float64 {
	r := cost.Ratio()
	if r > 1e308 {
		return 1e308
	}
	return r
}

// String returns a one line summary of the result.
func (r *EstimateResult) String() string {
	return fmt.Sprintf("%s: %d granules, %s=%v/%v, allowed=%v",
		r.DatasetID, r.Granules, r.Cost.ID, r.Cost.Cost, r.Cost.Limit, r.Allowed())
}
