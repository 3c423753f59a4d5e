// Package progress prints live feedback for a running batch: a status line
// refreshed every second and one line per notable worker event.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"promokeys/internal/collector"
	"promokeys/internal/core"
)

const (
	clearLine = "\033[K"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

type Progress struct {
	startTime time.Time
	collector *collector.Collector
	target    int // codes requested across all workers
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	color     bool
	verbose   bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(c *collector.Collector, target int, quiet bool) *Progress {
	return &Progress{
		collector: c,
		target:    target,
		quiet:     quiet,
		output:    os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetColor enables ANSI colors for severity tags.
func (p *Progress) SetColor(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.color = on
}

// SetVerbose also prints registration attempts.
func (p *Progress) SetVerbose(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verbose = on
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	s := p.collector.Compute()
	p.mu.Lock()
	fmt.Fprintf(p.output, "%s%s\r", clearLine, statusLine(s, p.target, time.Since(p.startTime)))
	p.mu.Unlock()
}

func statusLine(s *collector.Summary, target int, elapsed time.Duration) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("[%02d:%02d] Codes: %d/%d | Attempts: %d | Workers done: %d/%d | Warnings: %d",
		mins, secs, s.Produced(), target, s.Attempts, s.WorkersDone, len(s.Workers), s.Warnings)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprint(p.output, clearLine)
	p.mu.Unlock()
}

// Report prints log, code and completion events. Requests are never
// printed; attempts only in verbose mode.
func (p *Progress) Report(e core.Event) {
	if p.quiet {
		return
	}
	switch e.Kind {
	case core.KindRequest:
		return
	case core.KindAttempt:
		p.mu.Lock()
		verbose := p.verbose
		p.mu.Unlock()
		if !verbose {
			return
		}
	}

	msg := e.Message
	if e.Worker != "" {
		msg = fmt.Sprintf("[%s] %s", e.Worker, msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "%s%s %s\n", clearLine, p.tag(e.Severity), msg)
}

func (p *Progress) tag(sev core.Severity) string {
	var label, color string
	switch sev {
	case core.SeveritySuccess:
		label, color = "[ OK ]", colorGreen
	case core.SeverityWarning:
		label, color = "[WARN]", colorYellow
	case core.SeverityError:
		label, color = "[FAIL]", colorRed
	default:
		label = "[INFO]"
	}
	if p.color && color != "" {
		return color + label + colorReset
	}
	return label
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "%s%s\n", clearLine, message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, clearLine+format+"\n", args...)
	p.mu.Unlock()
}
