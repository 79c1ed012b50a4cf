package ledger

import (
	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/canon"
)

// EditorRegisteredPayload anchors an editor's public key immutably.
type EditorRegisteredPayload struct {
	EditorID     uuid.UUID  `json:"editor_id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Role         Role       `json:"role"`
	PublicKey    string     `json:"public_key"`
	RegisteredBy *uuid.UUID `json:"registered_by,omitempty"`
	Rationale    string     `json:"rationale,omitempty"`
}

func (p EditorRegisteredPayload) Canon() (canon.Value, error) {
	fields := map[string]canon.Value{
		"editor_id":    canon.UUID(p.EditorID),
		"username":     canon.Str(p.Username),
		"display_name": canon.Str(p.DisplayName),
		"role":         canon.Enum(string(p.Role)),
		"public_key":   canon.Str(p.PublicKey),
		"rationale":    canon.Null(),
		"registered_by": canon.Null(),
	}
	if p.RegisteredBy != nil {
		fields["registered_by"] = canon.UUID(*p.RegisteredBy)
	}
	if p.Rationale != "" {
		fields["rationale"] = canon.Str(p.Rationale)
	}
	return canon.Map(fields), nil
}

// EditorDeactivatedPayload permanently disables an editor's standing to
// act. The editor's PublicKey and past events remain valid.
type EditorDeactivatedPayload struct {
	EditorID      uuid.UUID `json:"editor_id"`
	DeactivatedBy uuid.UUID `json:"deactivated_by"`
	Reason        string    `json:"reason,omitempty"`
}

func (p EditorDeactivatedPayload) Canon() (canon.Value, error) {
	fields := map[string]canon.Value{
		"editor_id":      canon.UUID(p.EditorID),
		"deactivated_by": canon.UUID(p.DeactivatedBy),
		"reason":         canon.Null(),
	}
	if p.Reason != "" {
		fields["reason"] = canon.Str(p.Reason)
	}
	return canon.Map(fields), nil
}

// ClaimDeclaredPayload is the first event in a claim's lifecycle.
type ClaimDeclaredPayload struct {
	ClaimID           uuid.UUID        `json:"claim_id"`
	Statement         string           `json:"statement"`
	StatementContext  string           `json:"statement_context"`
	ClaimantID        uuid.UUID        `json:"claimant_id"`
	DeclaredAt        canon.InstantJSON `json:"declared_at"`
	SourceURL         string           `json:"source_url"`
	SourceArchivedURL string           `json:"source_archived_url,omitempty"`
	ClaimType         ClaimType        `json:"claim_type"`
	ClaimClass        ClaimClass       `json:"claim_class,omitempty"`
	Scope             Scope            `json:"scope"`
}

func (p ClaimDeclaredPayload) ClaimIdentifier() uuid.UUID { return p.ClaimID }

func (p ClaimDeclaredPayload) Canon() (canon.Value, error) {
	scope := map[string]canon.Value{
		"geographic":    canon.Str(p.Scope.Geographic),
		"policy_domain": canon.Str(p.Scope.PolicyDomain),
		"affected_population": canon.Null(),
	}
	if p.Scope.AffectedPopulation != "" {
		scope["affected_population"] = canon.Str(p.Scope.AffectedPopulation)
	}

	fields := map[string]canon.Value{
		"claim_id":            canon.UUID(p.ClaimID),
		"statement":           canon.Str(p.Statement),
		"statement_context":   canon.Str(p.StatementContext),
		"claimant_id":         canon.UUID(p.ClaimantID),
		"declared_at":         p.DeclaredAt.Canon(),
		"source_url":          canon.Str(p.SourceURL),
		"source_archived_url": canon.Null(),
		"claim_type":          canon.Enum(string(p.ClaimType)),
		"claim_class":         canon.Null(),
		"scope":               canon.Map(scope),
	}
	if p.SourceArchivedURL != "" {
		fields["source_archived_url"] = canon.Str(p.SourceArchivedURL)
	}
	if p.ClaimClass != "" {
		fields["claim_class"] = canon.Enum(string(p.ClaimClass))
	}
	return canon.Map(fields), nil
}

// ClaimOperationalizedPayload defines the metrics and timeframe a claim
// will be judged against. This step is explicitly interpretation, not
// fact: the same statement could be operationalized differently by a
// different editor.
type ClaimOperationalizedPayload struct {
	ClaimID                  uuid.UUID `json:"claim_id"`
	ExpectedOutcomeDescription string  `json:"expected_outcome_description"`
	Metrics                  []string  `json:"metrics"`
	DirectionOfChange        string    `json:"direction_of_change"`
	BaselineValue            string    `json:"baseline_value,omitempty"`
	TargetValue              string    `json:"target_value,omitempty"`
	Timeframe                Timeframe `json:"timeframe"`
	SuccessConditions        []string  `json:"success_conditions"`
	PartialSuccessConditions []string  `json:"partial_success_conditions,omitempty"`
	FailureConditions        []string  `json:"failure_conditions,omitempty"`
}

func (p ClaimOperationalizedPayload) ClaimIdentifier() uuid.UUID { return p.ClaimID }

func (p ClaimOperationalizedPayload) Canon() (canon.Value, error) {
	milestones := make([]canon.Value, 0, len(p.Timeframe.MilestoneDates))
	for _, d := range p.Timeframe.MilestoneDates {
		milestones = append(milestones, canon.Str(d))
	}
	timeframe := map[string]canon.Value{
		"start_date":            canon.Str(p.Timeframe.StartDate),
		"evaluation_date":       canon.Str(p.Timeframe.EvaluationDate),
		"tolerance_window_days": canon.Int(int64(p.Timeframe.ToleranceWindowDays)),
		"milestone_dates":       canon.List(milestones...),
		"is_vague":              canon.Bool(p.Timeframe.IsVague),
		"vagueness_note":        canon.Null(),
	}
	if p.Timeframe.VaguenessNote != "" {
		timeframe["vagueness_note"] = canon.Str(p.Timeframe.VaguenessNote)
	}

	metrics := make([]canon.Value, 0, len(p.Metrics))
	for _, m := range p.Metrics {
		metrics = append(metrics, canon.Str(m))
	}
	success := stringsToValues(p.SuccessConditions)
	partial := stringsToValues(p.PartialSuccessConditions)
	failure := stringsToValues(p.FailureConditions)

	fields := map[string]canon.Value{
		"claim_id":                     canon.UUID(p.ClaimID),
		"expected_outcome_description": canon.Str(p.ExpectedOutcomeDescription),
		"metrics":                      canon.List(metrics...),
		"direction_of_change":          canon.Str(p.DirectionOfChange),
		"baseline_value":               canon.Null(),
		"target_value":                 canon.Null(),
		"timeframe":                    canon.Map(timeframe),
		"success_conditions":           canon.List(success...),
		"partial_success_conditions":   canon.List(partial...),
		"failure_conditions":           canon.List(failure...),
	}
	if p.BaselineValue != "" {
		fields["baseline_value"] = canon.Str(p.BaselineValue)
	}
	if p.TargetValue != "" {
		fields["target_value"] = canon.Str(p.TargetValue)
	}
	return canon.Map(fields), nil
}

// EvidenceAddedPayload attaches one piece of evidence to a claim.
// Evidence constrains interpretation; it does not assert truth.
type EvidenceAddedPayload struct {
	EvidenceID           uuid.UUID          `json:"evidence_id"`
	ClaimID              uuid.UUID          `json:"claim_id"`
	SourceURL            string             `json:"source_url"`
	SourceTitle          string             `json:"source_title"`
	SourcePublisher      string             `json:"source_publisher"`
	SourceDate           canon.DateJSON     `json:"source_date"`
	SourceType           SourceType         `json:"source_type"`
	EvidenceType         EvidenceType       `json:"evidence_type"`
	Summary              string             `json:"summary"`
	SupportsClaim        *bool              `json:"supports_claim,omitempty"`
	RelevanceExplanation string             `json:"relevance_explanation"`
	Confidence           canon.DecimalString `json:"confidence"`
	ConfidenceRationale  string             `json:"confidence_rationale,omitempty"`
}

func (p EvidenceAddedPayload) ClaimIdentifier() uuid.UUID { return p.ClaimID }

func (p EvidenceAddedPayload) Canon() (canon.Value, error) {
	confidence, err := p.Confidence.Canon()
	if err != nil {
		return canon.Value{}, err
	}
	fields := map[string]canon.Value{
		"evidence_id":           canon.UUID(p.EvidenceID),
		"claim_id":              canon.UUID(p.ClaimID),
		"source_url":            canon.Str(p.SourceURL),
		"source_title":          canon.Str(p.SourceTitle),
		"source_publisher":      canon.Str(p.SourcePublisher),
		"source_date":           p.SourceDate.Canon(),
		"source_type":           canon.Enum(string(p.SourceType)),
		"evidence_type":         canon.Enum(string(p.EvidenceType)),
		"summary":               canon.Str(p.Summary),
		"supports_claim":        canon.Null(),
		"relevance_explanation": canon.Str(p.RelevanceExplanation),
		"confidence":            confidence,
		"confidence_rationale":  canon.Null(),
	}
	if p.SupportsClaim != nil {
		fields["supports_claim"] = canon.Bool(*p.SupportsClaim)
	}
	if p.ConfidenceRationale != "" {
		fields["confidence_rationale"] = canon.Str(p.ConfidenceRationale)
	}
	return canon.Map(fields), nil
}

// ClaimResolvedPayload is the final, one-time determination on a claim.
type ClaimResolvedPayload struct {
	ClaimID               uuid.UUID   `json:"claim_id"`
	Resolution            Resolution  `json:"resolution"`
	ResolutionSummary     string      `json:"resolution_summary,omitempty"`
	SupportingEvidenceIDs []uuid.UUID `json:"supporting_evidence_ids"`
}

func (p ClaimResolvedPayload) ClaimIdentifier() uuid.UUID { return p.ClaimID }

func (p ClaimResolvedPayload) Canon() (canon.Value, error) {
	ids := make([]canon.Value, 0, len(p.SupportingEvidenceIDs))
	for _, id := range p.SupportingEvidenceIDs {
		ids = append(ids, canon.UUID(id))
	}
	fields := map[string]canon.Value{
		"claim_id":                canon.UUID(p.ClaimID),
		"resolution":              canon.Enum(string(p.Resolution)),
		"resolution_summary":      canon.Null(),
		"supporting_evidence_ids": canon.List(ids...),
	}
	if p.ResolutionSummary != "" {
		fields["resolution_summary"] = canon.Str(p.ResolutionSummary)
	}
	return canon.Map(fields), nil
}

func stringsToValues(ss []string) []canon.Value {
	out := make([]canon.Value, 0, len(ss))
	for _, s := range ss {
		out = append(out, canon.Str(s))
	}
	return out
}
