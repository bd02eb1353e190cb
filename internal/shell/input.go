package shell

import (
	"bufio"
	"io"
	"strings"
)

// BackgroundToken as the last word of a line runs the pipeline in the
// background.
const BackgroundToken = "&"

// Tokenize splits line on whitespace and strips a trailing BackgroundToken.
// The result never contains empty words.
func Tokenize(line string) (args []string, background bool) {
	args = strings.Fields(line)
	if n := len(args); n > 0 && args[n-1] == BackgroundToken {
		return args[:n-1], true
	}
	return args, false
}

type lineResult struct {
	line string
	err  error
}

// lineReader reads one line per request on its own goroutine so the command
// loop can wait for input and for signals at the same time. Nothing is read
// while no request is outstanding, which leaves the terminal to foreground
// jobs.
type lineReader struct {
	requests chan struct{}
	results  chan lineResult
	pending  bool
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		requests: make(chan struct{}),
		results:  make(chan lineResult, 1),
	}
	go lr.loop(bufio.NewReader(r))
	return lr
}

func (lr *lineReader) loop(r *bufio.Reader) {
	for range lr.requests {
		line, err := r.ReadString('\n')
		if err == io.EOF && line != "" {
			// Deliver an unterminated last line; the next read reports EOF.
			err = nil
		}
		lr.results <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
	}
}

// next returns the channel the next line arrives on, asking for one if no
// request is outstanding.
func (lr *lineReader) next() <-chan lineResult {
	if !lr.pending {
		lr.pending = true
		lr.requests <- struct{}{}
	}
	return lr.results
}

// received marks the outstanding request as answered.
func (lr *lineReader) received() {
	lr.pending = false
}
