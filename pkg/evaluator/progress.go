package evaluator

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Progress renders a live-updating status line for an Evaluate call,
// ported from the teacher's pkg/evaluation/progress.go. It is optional:
// Evaluator.Progress is nil unless `validator run --progress` is given (and
// in tests that do not set it), and every call site on Evaluator guards
// against that. On a non-terminal writer it prints plain lines.
type Progress struct {
	out       io.Writer
	fd        int
	total     int
	completed atomic.Int32
	passed    atomic.Int32
	failed    atomic.Int32
	running   sync.Map // map[string]bool, keyed by tracker hotkey
	done      chan struct{}
	stopped   chan struct{}
	ticker    *time.Ticker
	isTTY     bool
	mu        sync.Mutex
}

// NewProgress builds a Progress writing to out. If out is an *os.File
// attached to a terminal, the bar renders in place and in color;
// otherwise it falls back to plain newline-per-update output.
func NewProgress(out io.Writer) *Progress {
	fd := -1
	isTTY := false
	if f, ok := out.(*os.File); ok {
		fd = int(f.Fd())
		isTTY = term.IsTerminal(fd)
	}
	return &Progress{out: out, fd: fd, done: make(chan struct{}), stopped: make(chan struct{}), isTTY: isTTY}
}

// Start begins rendering against a total of total trackers.
func (p *Progress) Start(total int) {
	p.total = total
	p.ticker = time.NewTicker(200 * time.Millisecond)
	go func() {
		defer close(p.stopped)
		for {
			select {
			case <-p.done:
				p.ticker.Stop()
				p.render(true)
				return
			case <-p.ticker.C:
				p.render(false)
			}
		}
	}()
}

// Stop halts rendering and waits for the final line to flush.
func (p *Progress) Stop() {
	close(p.done)
	<-p.stopped
}

// SetRunning marks hotkey as currently evaluating.
func (p *Progress) SetRunning(hotkey string) {
	p.running.Store(hotkey, true)
}

// Complete marks hotkey done and records whether it scored above zero.
func (p *Progress) Complete(hotkey string, success bool) {
	p.running.Delete(hotkey)
	p.completed.Add(1)
	if success {
		p.passed.Add(1)
	} else {
		p.failed.Add(1)
	}
}

func (p *Progress) green(s string) string {
	if p.isTTY {
		return "\x1b[32m" + s + "\x1b[0m"
	}
	return s
}

func (p *Progress) red(s string) string {
	if p.isTTY {
		return "\x1b[31m" + s + "\x1b[0m"
	}
	return s
}

func (p *Progress) terminalWidth() int {
	if !p.isTTY {
		return 80
	}
	width, _, err := term.GetSize(p.fd)
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func (p *Progress) render(final bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := int(p.completed.Load())
	passed := int(p.passed.Load())
	failed := int(p.failed.Load())

	width := p.terminalWidth()
	barWidth := min(max(width-60, 10), 50)

	filled := 0
	if p.total > 0 {
		filled = (completed * barWidth) / p.total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	percent := 0
	if p.total > 0 {
		percent = (completed * 100) / p.total
	}

	counts := fmt.Sprintf("%s %s", p.green(fmt.Sprintf("✓%d", passed)), p.red(fmt.Sprintf("✗%d", failed)))
	status := fmt.Sprintf("[%s] %3d%% (%d/%d) %s", bar, percent, completed, p.total, counts)

	runningCount := 0
	var firstHotkey string
	p.running.Range(func(key, _ any) bool {
		runningCount++
		if firstHotkey == "" {
			firstHotkey = key.(string)
		}
		return true
	})
	if runningCount == 1 {
		status += fmt.Sprintf(" | %s", firstHotkey)
	} else if runningCount > 1 {
		status += fmt.Sprintf(" | %s +%d more", firstHotkey, runningCount-1)
	}

	if p.isTTY {
		fmt.Fprintf(p.out, "\r\x1b[K%s", status)
		if final {
			fmt.Fprintln(p.out)
		}
		return
	}
	fmt.Fprintln(p.out, status)
}
