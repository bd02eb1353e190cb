// Package pipeline models the ordered, immutable description of the programs
// a command line runs, stdout of each stage feeding stdin of the next.
//
// # Stages
//
// A [Stage] is either an external program run with its argument vector
// ([KindExternal]) or the pager alias ([KindPager]), which carries the
// ordered list of pager programs to try. A [Spec] holds at least one stage
// and is never modified after [New] returns it.
//
// # Building from tokens
//
// [Builder] turns the tokens of a command line into a Spec:
//
//	b := &pipeline.Builder{PagerFallbacks: []string{"less", "more"}}
//	spec, err := b.Build([]string{"ls", "-l", "|", "pager"})
//
// "checkEnv" (alias "digenv") expands in place to
// "printenv | sort | pager", or "printenv | grep ARGS... | sort | pager"
// when it has arguments, so it can be combined with other stages.
//
// A pipe token without a command on both sides fails with
// errors.ErrDanglingPipe.
package pipeline
