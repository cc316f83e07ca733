package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/tabterm/host/internal/metrics"
)

// processListLimit caps the processes/top output. Tabs are not a
// full-screen monitor; a short ranked list is more readable than
// hundreds of rows.
const processListLimit = 15

// latestOrSample prefers the sampler's cached snapshot so the cpu and
// memory commands answer instantly, probing directly only before the
// first sample has landed.
func (d *Dispatcher) latestOrSample() (metrics.Snapshot, error) {
	if d.sampler != nil {
		if snap, ok := d.sampler.Latest(); ok {
			return snap, nil
		}
	}
	return metrics.Sample()
}

func (d *Dispatcher) cpuInfo() (string, error) {
	snap, err := d.latestOrSample()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CPU Information\n")
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		fmt.Fprintf(&b, "  Model:    %s\n", infos[0].ModelName)
	}
	if physical, err := cpu.Counts(false); err == nil {
		logical, _ := cpu.Counts(true)
		fmt.Fprintf(&b, "  Cores:    %d physical, %d logical\n", physical, logical)
	}
	fmt.Fprintf(&b, "  Usage:    %.1f%%", snap.CPUPercent)
	return b.String(), nil
}

func (d *Dispatcher) memoryInfo() (string, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Memory Information\n")
	fmt.Fprintf(&b, "  Total:      %s\n", humanize.IBytes(vm.Total))
	fmt.Fprintf(&b, "  Used:       %s (%.1f%%)\n", humanize.IBytes(vm.Used), vm.UsedPercent)
	fmt.Fprintf(&b, "  Available:  %s", humanize.IBytes(vm.Available))
	return b.String(), nil
}

// processList renders the heaviest processes by resident memory.
func (d *Dispatcher) processList() (string, error) {
	procs, err := process.Processes()
	if err != nil {
		return "", err
	}

	type row struct {
		pid  int32
		name string
		rss  uint64
	}
	rows := make([]row, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		var rss uint64
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			rss = mi.RSS
		}
		rows = append(rows, row{pid: p.Pid, name: name, rss: rss})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].rss > rows[j].rss })
	if len(rows) > processListLimit {
		rows = rows[:processListLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%7s  %10s  %s\n", "PID", "MEM", "NAME")
	for _, r := range rows {
		fmt.Fprintf(&b, "%7d  %10s  %s\n", r.pid, humanize.IBytes(r.rss), r.name)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// topSummary combines load, CPU, memory and the process list into one
// screenful.
func (d *Dispatcher) topSummary() (string, error) {
	snap, err := d.latestOrSample()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if avg, err := load.Avg(); err == nil {
		fmt.Fprintf(&b, "Load average: %.2f, %.2f, %.2f\n", avg.Load1, avg.Load5, avg.Load15)
	}
	fmt.Fprintf(&b, "CPU: %.1f%%  Memory: %.1f%%  Processes: %d\n\n",
		snap.CPUPercent, snap.MemoryPercent, snap.ProcessCount)

	procs, err := d.processList()
	if err != nil {
		return strings.TrimRight(b.String(), "\n"), nil
	}
	b.WriteString(procs)
	return b.String(), nil
}
