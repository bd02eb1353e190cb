package pipeline

import (
	"os"
	"slices"

	"github.com/Iron-Ham/tosh/internal/errors"
)

// PipeToken separates stages in a token vector.
const PipeToken = "|"

// Stage names with special meaning to the builder.
const (
	PagerAlias    = "pager"
	CheckEnvAlias = "checkEnv"
	DigenvAlias   = "digenv"
)

// Builder turns token vectors into Specs, expanding the pager alias and the
// checkEnv composite.
type Builder struct {
	// Getenv reads the environment; os.Getenv when nil.
	Getenv func(string) string
	// PagerFallbacks are tried after $PAGER, in order.
	PagerFallbacks []string
}

// Build splits args on PipeToken and returns the resulting Spec. Empty
// segments ("a | | b", "| a", "a |") are rejected with ErrDanglingPipe.
func (b *Builder) Build(args []string) (Spec, error) {
	if len(args) == 0 {
		return Spec{}, errors.ErrEmptyPipeline
	}

	var stages []Stage
	start := 0
	for i := 0; i <= len(args); i++ {
		if i < len(args) && args[i] != PipeToken {
			continue
		}
		segment := args[start:i]
		if len(segment) == 0 {
			return Spec{}, errors.ErrDanglingPipe
		}
		expanded, err := b.expand(segment)
		if err != nil {
			return Spec{}, err
		}
		stages = append(stages, expanded...)
		start = i + 1
	}

	return New(stages...)
}

// CheckEnv synthesizes "printenv | sort | pager", or
// "printenv | grep ARGS... | sort | pager" when args are given.
func (b *Builder) CheckEnv(args ...string) (Spec, error) {
	stages, err := b.checkEnvStages(args)
	if err != nil {
		return Spec{}, err
	}
	return New(stages...)
}

func (b *Builder) expand(argv []string) ([]Stage, error) {
	switch argv[0] {
	case PagerAlias:
		st, err := Pager(b.PagerCandidates(), argv...)
		if err != nil {
			return nil, err
		}
		return []Stage{st}, nil
	case CheckEnvAlias, DigenvAlias:
		return b.checkEnvStages(argv[1:])
	default:
		st, err := External(argv...)
		if err != nil {
			return nil, err
		}
		return []Stage{st}, nil
	}
}

func (b *Builder) checkEnvStages(args []string) ([]Stage, error) {
	printenv, _ := External("printenv")
	sort, _ := External("sort")
	pager, err := Pager(b.PagerCandidates(), PagerAlias)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return []Stage{printenv, sort, pager}, nil
	}
	grep, _ := External(append([]string{"grep"}, args...)...)
	return []Stage{printenv, grep, sort, pager}, nil
}

// PagerCandidates returns the pagers to try in order: $PAGER when set and
// non-empty, then the configured fallbacks, without duplicates.
func (b *Builder) PagerCandidates() []string {
	getenv := b.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var out []string
	if p := getenv("PAGER"); p != "" {
		out = append(out, p)
	}
	for _, f := range b.PagerFallbacks {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = append(out, "more")
	}
	return out
}
