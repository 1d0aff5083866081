package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusDone    Status = "success"
	StatusFailed  Status = "error"
)

type jobLine struct {
	id        int
	url       string
	status    Status
	message   string
	percent   int
	size      int64
	startTime time.Time
	updated   time.Time
	err       error
}

type errorReport struct {
	url  string
	err  error
	time time.Time
}

// Manager tracks every download in a run and redraws their state on a
// ticker. On a non-terminal writer only the final state is printed.
type Manager struct {
	w           io.Writer
	interactive bool
	mutex       sync.RWMutex
	jobs        []*jobLine
	errors      []errorReport
	numLines    int
	maxLines    int
	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewManager(w io.Writer) *Manager {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = isTerminal(f)
	}
	return &Manager{
		w:           w,
		interactive: interactive,
		maxLines:    terminalHeight() - 3,
		displayTick: 200 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

func (m *Manager) RegisterJob(url string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	m.jobs = append(m.jobs, &jobLine{
		id:        len(m.jobs) + 1,
		url:       url,
		status:    StatusWaiting,
		startTime: now,
		updated:   now,
	})
	return len(m.jobs)
}

func (m *Manager) job(id int) *jobLine {
	if id < 1 || id > len(m.jobs) {
		return nil
	}
	return m.jobs[id-1]
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if j := m.job(id); j != nil {
		j.message = message
		j.status = StatusRunning
		j.updated = time.Now()
	}
}

// SetProgress records the latest percentage and, when known, the total size.
func (m *Manager) SetProgress(id, percent int, size int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if j := m.job(id); j != nil {
		j.status = StatusRunning
		j.percent = percent
		if size > 0 {
			j.size = size
		}
		j.updated = time.Now()
	}
}

func (m *Manager) Complete(id int, message string, size int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if j := m.job(id); j != nil {
		if message == "" {
			message = fmt.Sprintf("Completed %s", j.url)
		}
		j.message = message
		j.status = StatusDone
		j.percent = 100
		j.size = size
		j.updated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if j := m.job(id); j != nil {
		j.status = StatusFailed
		j.err = err
		j.message = fmt.Sprintf("Failed %s", j.url)
		j.updated = time.Now()
		m.errors = append(m.errors, errorReport{url: j.url, err: err, time: j.updated})
	}
}

// Counts returns how many registered jobs succeeded and failed.
func (m *Manager) Counts() (succeeded, failed int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, j := range m.jobs {
		switch j.status {
		case StatusDone:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, failed
}

func statusIndicator(status Status) string {
	switch status {
	case StatusDone:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusRunning:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status Status, message string) string {
	switch status {
	case StatusDone:
		return successStyle.Render(message)
	case StatusFailed:
		return errorStyle.Render(message)
	case StatusWaiting:
		return pendingStyle.Render("Waiting...")
	default:
		return pendingStyle.Render(message)
	}
}

// render writes one line per job plus a progress line for running jobs and
// returns the number of lines written.
func (m *Manager) render(w io.Writer) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	jobs := m.jobs
	hidden := 0
	if m.maxLines > 0 && len(jobs) > m.maxLines/2 {
		hidden = len(jobs) - m.maxLines/2
		jobs = jobs[hidden:]
	}
	lines := 0
	if hidden > 0 {
		fmt.Fprintln(w, strings.Repeat(" ", 2)+infoStyle.Render(fmt.Sprintf("%d earlier links hidden ...", hidden)))
		lines++
	}
	for _, j := range jobs {
		end := time.Now()
		if j.status == StatusDone || j.status == StatusFailed {
			end = j.updated
		}
		elapsed := end.Sub(j.startTime).Round(time.Second)
		fmt.Fprintf(w, "%s%s %s %s\n", strings.Repeat(" ", 2), statusIndicator(j.status), debugStyle.Render(elapsed.String()), styleMessage(j.status, j.message))
		lines++
		switch j.status {
		case StatusRunning:
			detail := PrintProgressBar(j.percent, 30)
			if j.size > 0 {
				done := j.size * int64(j.percent) / 100
				detail += " " + debugStyle.Render(fmt.Sprintf("%s %s %s", humanize.IBytes(uint64(j.size)), StyleSymbols["bullet"], FormatSpeed(done, elapsed.Seconds())))
			}
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", 2+4), detail)
			lines++
		case StatusDone:
			if j.size > 0 {
				fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", 2+4), streamStyle.Render(fmt.Sprintf("%s in %s", humanize.IBytes(uint64(j.size)), elapsed)))
				lines++
			}
		}
	}
	return lines
}

func (m *Manager) updateDisplay() {
	if m.numLines > 0 {
		fmt.Fprintf(m.w, "\033[%dA\033[J", m.numLines)
	}
	m.numLines = m.render(m.w)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.updateDisplay()
				}
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) ShowSummary() {
	succeeded, failed := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", succeeded, len(m.jobs))))
	if failed > 0 {
		fmt.Fprintln(m.w, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(m.jobs))))
	}
	if len(m.errors) > 0 {
		fmt.Fprintln(m.w)
		fmt.Fprintln(m.w, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
		for i, e := range m.errors {
			fmt.Fprintf(m.w, "%s%s %s %s\n",
				strings.Repeat(" ", 2+2),
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", e.time.Format("15:04:05"))),
				errorStyle.Render(e.url))
			fmt.Fprintf(m.w, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
		}
	}
	fmt.Fprintln(m.w)
}
