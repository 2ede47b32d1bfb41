package pipeline

import (
	"context"
	"errors"
	"sync"

	"framelens/internal/domain"
	"framelens/internal/infra"
	"framelens/internal/providers/image"
)

// BranchEditor runs one editing instruction to completion.
type BranchEditor interface {
	Enhance(ctx context.Context, source image.SourceImage, instruction domain.EditingInstruction) (*image.Enhanced, error)
}

// Executor fans the three editing instructions out as independent concurrent
// branches and joins on all of them. There is no fail-fast short circuit: a
// failed branch never discards its siblings, because each variant is
// independently valuable to the caller.
type Executor struct {
	editor BranchEditor
	logger infra.Logger
}

// NewExecutor constructs an Executor running branches through the editor.
func NewExecutor(editor BranchEditor, logger infra.Logger) *Executor {
	return &Executor{editor: editor, logger: logger}
}

// Execute runs all three branches concurrently and waits for every branch to
// reach a terminal state. Each slot of the returned set records its own
// outcome; only when every branch fails does the call fail as a whole, with
// ErrEnhancementSetFailed joined to all three causes. No retries happen here.
func (e *Executor) Execute(ctx context.Context, fp domain.Fingerprint, source image.SourceImage, instructions [3]domain.EditingInstruction) (*domain.EnhancementSet, error) {
	set := &domain.EnhancementSet{Fingerprint: fp}

	var wg sync.WaitGroup
	for i, instruction := range instructions {
		wg.Add(1)
		go func(slot int, instruction domain.EditingInstruction) {
			defer wg.Done()
			enhanced, err := e.editor.Enhance(ctx, source, instruction)
			if err != nil {
				e.logger.Warn().
					Err(err).
					Str("fingerprint", fp.String()).
					Str("variant", string(instruction.Variant)).
					Msg("pipeline: enhancement branch failed")
				set.Results[slot] = domain.EnhancementResult{Variant: instruction.Variant, Err: err}
				return
			}
			set.Results[slot] = domain.EnhancementResult{
				Variant: instruction.Variant,
				Image:   enhanced.Data,
				MIME:    enhanced.MIME,
				Report:  enhanced.Report,
			}
		}(i, instruction)
	}
	wg.Wait()

	var causes []error
	for _, result := range set.Results {
		if result.Failed() {
			causes = append(causes, result.Err)
		}
	}
	if len(causes) == len(set.Results) {
		return nil, errors.Join(append([]error{domain.ErrEnhancementSetFailed}, causes...)...)
	}
	return set, nil
}
