package pipeline

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/tosh/internal/errors"
)

// Kind tags how a stage's process image is produced.
type Kind int

const (
	// KindExternal replaces the child with the named program, searched in PATH.
	KindExternal Kind = iota
	// KindPager replaces the child with the first available pager.
	KindPager
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindPager:
		return "pager"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "external":
		return KindExternal, true
	case "pager":
		return KindPager, true
	default:
		return 0, false
	}
}

// Stage is one program invocation. The zero value is not a valid stage; use
// External or Pager.
type Stage struct {
	kind       Kind
	argv       []string
	candidates []string
}

// External returns a stage running argv[0] with argv as its argument vector.
func External(argv ...string) (Stage, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Stage{}, errors.ErrEmptyStage
	}
	return Stage{kind: KindExternal, argv: slices.Clone(argv)}, nil
}

// Pager returns an internal stage that execs the first of candidates found
// in PATH. argv[0] names the stage; the remaining entries are passed to the
// pager.
func Pager(candidates []string, argv ...string) (Stage, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Stage{}, errors.ErrEmptyStage
	}
	if len(candidates) == 0 {
		return Stage{}, errors.NewValidationError("pager stage needs at least one candidate").WithField("candidates")
	}
	return Stage{kind: KindPager, argv: slices.Clone(argv), candidates: slices.Clone(candidates)}, nil
}

// Kind returns the stage's variant.
func (s Stage) Kind() Kind { return s.kind }

// Name returns the program name, argv[0].
func (s Stage) Name() string {
	if len(s.argv) == 0 {
		return ""
	}
	return s.argv[0]
}

// Argv returns a copy of the stage's argument vector, argv[0] included.
func (s Stage) Argv() []string { return slices.Clone(s.argv) }

// Candidates returns a copy of the programs a pager stage tries, in order.
func (s Stage) Candidates() []string { return slices.Clone(s.candidates) }

// String renders the stage as it would be typed.
func (s Stage) String() string { return strings.Join(s.argv, " ") }
