package synthesis

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/project"
	"github.com/ppiankov/aem/internal/store"
)

// Enforcer validates reports for one project and applies the enforcement mode
type Enforcer struct {
	layout project.Layout
	mode   model.EnforcementMode
	audit  *audit.Log
	logger *zap.Logger
	now    func() time.Time
}

// NewEnforcer creates an enforcer. An unknown mode behaves as observe.
func NewEnforcer(layout project.Layout, mode model.EnforcementMode, log *audit.Log, logger *zap.Logger) *Enforcer {
	if _, ok := model.ParseEnforcementMode(string(mode)); !ok {
		mode = model.ModeObserve
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		layout: layout,
		mode:   mode,
		audit:  log,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply validates report against the project ledger and writes the status
// file. The report is stored at reports/report.md when it is valid or the mode
// is observe. In enforce and strict an invalid report returns *ContractError
// and the previous report is left in place.
func (e *Enforcer) Apply(report string) (Status, error) {
	visible, err := VisibleText(report)
	if err != nil {
		return Status{}, fmt.Errorf("parse report: %w", err)
	}

	claims, err := ledger.NewStore(e.layout.Ledger()).Load()
	if err != nil {
		return Status{}, err
	}

	st := Validate(visible, claims)
	st.Mode = e.mode
	st.CheckedAt = e.now()

	if err := store.WriteJSON(e.layout.SynthesisStatus(), st); err != nil {
		return st, err
	}

	detail := fmt.Sprintf("valid=%t unknown_refs=%d unreferenced=%d tentative_labels_ok=%t",
		st.Valid, len(st.UnknownRefs), len(st.UnreferencedClaimSentences), st.TentativeLabelsOK)

	if !st.Valid && e.mode != model.ModeObserve {
		cerr := &ContractError{Status: st}
		e.audit.Record(audit.EventSynthesisChecked, "synthesis", detail, cerr)
		e.logger.Warn("synthesis contract violated",
			zap.String("mode", string(e.mode)),
			zap.Strings("violations", st.Violations()))
		return st, cerr
	}

	if err := store.WriteFileAtomic(e.layout.Report(), []byte(ensureNewline(report))); err != nil {
		return st, err
	}
	e.audit.Record(audit.EventSynthesisChecked, "synthesis", detail, nil)
	if !st.Valid {
		e.logger.Warn("synthesis contract violated (observe)", zap.Strings("violations", st.Violations()))
	} else {
		e.logger.Info("synthesis contract satisfied", zap.Int("refs", len(st.RefsCited)))
	}
	return st, nil
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
