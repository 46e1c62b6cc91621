// Package progress reports the progress of an upload into the virtual
// volume on a terminal.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gokrazy/ghostfat/humanize"
)

// Counter counts the bytes written to it.
type Counter struct {
	n uint64
}

func (c *Counter) Write(p []byte) (n int, err error) {
	atomic.AddUint64(&c.n, uint64(len(p)))
	return len(p), nil
}

// Add counts n bytes which were transferred without a Write call.
func (c *Counter) Add(n int) {
	atomic.AddUint64(&c.n, uint64(n))
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.n)
}

func (c *Counter) Reset() uint64 {
	return atomic.SwapUint64(&c.n, 0)
}

type Reporter struct {
	Counter *Counter

	// Out defaults to os.Stdout.
	Out io.Writer

	// Interval defaults to one second.
	Interval time.Duration

	total uint64

	mu     sync.Mutex
	status string
}

func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// line formats one progress line for transferred bytes, bytesPerS of
// which were transferred within the last second.
func (p *Reporter) line(transferred, bytesPerS uint64) string {
	rate := humanize.BPS(bytesPerS)
	status := rate
	if total := atomic.LoadUint64(&p.total); total > 0 {
		pct := float64(transferred) / float64(total) * 100
		status = fmt.Sprintf("%02.2f%% of %s, uploading at %s",
			pct,
			humanize.Bytes(total),
			rate)
	}
	return fmt.Sprintf("\r[%s] %s                 ", p.getStatus(), status)
}

// Report prints a progress line every Interval until ctx is done.
func (p *Reporter) Report(ctx context.Context) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	interval := p.Interval
	if interval == 0 {
		interval = 1 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := p.Counter.Load()
	for {
		select {
		case <-ticker.C:
			transferred := p.Counter.Load()
			if transferred < last {
				// transferred was reset
				last = 0
			}
			bytesPerS := uint64(float64(transferred-last) / interval.Seconds())
			last = transferred
			fmt.Fprint(out, p.line(transferred, bytesPerS))
		case <-ctx.Done():
			return
		}
	}
}
