package pipeline

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/tosh/internal/errors"
)

// Spec is an ordered, non-empty sequence of stages. Stage 0 reads the job's
// own stdin; the last stage writes the job's inherited stdout; every other
// stage reads and writes pipes only.
type Spec struct {
	stages []Stage
}

// New builds a Spec from stages. It fails with ErrEmptyPipeline when no
// stage is given.
func New(stages ...Stage) (Spec, error) {
	if len(stages) == 0 {
		return Spec{}, errors.ErrEmptyPipeline
	}
	for _, st := range stages {
		if st.Name() == "" {
			return Spec{}, errors.ErrEmptyStage
		}
	}
	return Spec{stages: slices.Clone(stages)}, nil
}

// Len returns the number of stages.
func (s Spec) Len() int { return len(s.stages) }

// Stage returns the stage at position i.
func (s Spec) Stage(i int) Stage { return s.stages[i] }

// Stages returns a copy of all stages in order.
func (s Spec) Stages() []Stage { return slices.Clone(s.stages) }

// String renders the pipeline as a command line.
func (s Spec) String() string {
	parts := make([]string, len(s.stages))
	for i, st := range s.stages {
		parts[i] = st.String()
	}
	return strings.Join(parts, " | ")
}
