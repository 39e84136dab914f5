// Package policy provides a simple, optional ingestion admission layer that
// can be attached to an ingest call via context. It is deliberately decoupled
// from the rest of the engine so that using it is entirely opt-in; callers
// that do not embed a Policy in their context keep the original "auto"
// behaviour.

package policy

import (
	"context"
	"strings"

	"github.com/viant/docuflow/model"
)

// Admission modes recognised by the orchestrator.
const (
	ModeAsk  = "ask"  // ask before admitting every document
	ModeAuto = "auto" // admit automatically (default)
	ModeDeny = "deny" // block ingestion
)

// AskFunc is invoked when Mode==ask. Returning true admits the document,
// false rejects it. Implementations MAY mutate the policy (for example,
// switching to ModeAuto after the first approval).
type AskFunc func(
	ctx context.Context,
	document *model.Document,
	p *Policy,
) bool

// Policy represents the admission settings for ingestion.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowTypes, BlockTypes filter by document type regardless of Mode.
//   - Ask is only used when Mode==ask.
//
// A nil *Policy means "admit everything" and is therefore the zero-cost
// default.
type Policy struct {
	Mode       string               // ask / auto / deny (default = auto)
	AllowTypes []model.DocumentType // whitelist (empty => all)
	BlockTypes []model.DocumentType // blacklist
	Ask        AskFunc              // used only when Mode==ask
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode       string               `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowTypes []model.DocumentType `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockTypes []model.DocumentType `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:       p.Mode,
		AllowTypes: append([]model.DocumentType(nil), p.AllowTypes...),
		BlockTypes: append([]model.DocumentType(nil), p.BlockTypes...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without
// AskFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:       c.Mode,
		AllowTypes: append([]model.DocumentType(nil), c.AllowTypes...),
		BlockTypes: append([]model.DocumentType(nil), c.BlockTypes...),
	}
}

// IsAllowed evaluates AllowTypes / BlockTypes. Both lists match by exact
// case-insensitive comparison of the document type.
func (p *Policy) IsAllowed(documentType model.DocumentType) bool {
	if p == nil {
		return true
	}
	if p.Mode == ModeDeny {
		return false
	}

	normalized := strings.ToLower(string(documentType))

	// BlockTypes has priority.
	for _, b := range p.BlockTypes {
		if normalized == strings.ToLower(string(b)) {
			return false
		}
	}

	// AllowTypes – if empty everything is allowed, otherwise only the listed
	// entries.
	if len(p.AllowTypes) == 0 {
		return true
	}

	for _, a := range p.AllowTypes {
		if normalized == strings.ToLower(string(a)) {
			return true
		}
	}

	return false
}

// Admit runs the full admission decision for a document: list filtering
// first, then the interactive Ask hook when configured.
func (p *Policy) Admit(ctx context.Context, document *model.Document) bool {
	if p == nil {
		return true
	}
	if !p.IsAllowed(document.Type) {
		return false
	}
	if p.Mode == ModeAsk && p.Ask != nil {
		return p.Ask(ctx, document, p)
	}
	return true
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the Policy from ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
