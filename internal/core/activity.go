package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ActivityReport is everything a sender sees about a link they shared.
type ActivityReport struct {
	Context ContextDescriptor
	Activity
}

// ActivityViewer loads the conversations, reactions and comments recorded
// against a link.
type ActivityViewer struct {
	backend Backend
	log     *zap.Logger
	errs    ErrorState
}

func NewActivityViewer(backend Backend, opts Options) *ActivityViewer {
	return &ActivityViewer{backend: backend, log: opts.logger().Named("activity")}
}

// Load fetches the activity aggregate for linkID and resolves what the link
// points at with the same probe order as the Resolver.
func (v *ActivityViewer) Load(ctx context.Context, linkID string) (ActivityReport, error) {
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return ActivityReport{}, ErrEmptyLink
	}

	activity, err := v.backend.GetActivity(ctx, linkID)
	if err != nil {
		err = fmt.Errorf("load activity for %q: %w", linkID, err)
		v.errs.Set(err)
		return ActivityReport{}, err
	}

	desc, err := resolveLink(ctx, v.backend, linkID, v.log)
	if err != nil {
		v.errs.Set(err)
		return ActivityReport{}, err
	}
	v.errs.Dismiss()
	return ActivityReport{Context: desc, Activity: activity}, nil
}

func (v *ActivityViewer) Errors() *ErrorState { return &v.errs }
