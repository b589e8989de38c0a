package vm

import (
	"sync"
	"sync/atomic"
)

// Profiler tracks per-function call and resume counts to identify hot
// code. Calls count frame entries; resumes count generator and
// coroutine re-entries, which matter separately because a generator
// driving a tight loop is entered once but resumed constantly.

// FuncProfile holds profiling data for a single function.
type FuncProfile struct {
	CallCount   uint64 // atomic
	ResumeCount uint64 // atomic
	IsHot       bool
}

// FuncStat is a point-in-time copy of one function's counters.
type FuncStat struct {
	Name    string
	Calls   uint64
	Resumes uint64
	Hot     bool
}

// OpStat is a point-in-time copy of one opcode's execution count.
type OpStat struct {
	Opcode Opcode
	Name   string
	Count  uint64
}

// Profiler manages profiling for all functions run by a VM. Disabled
// profilers cost one atomic load per call.
type Profiler struct {
	profiles sync.Map    // qualified name -> *FuncProfile
	ops      [256]uint64 // atomic, indexed by opcode byte

	// HotThreshold is the combined call+resume count at which a
	// function is marked hot.
	HotThreshold uint64

	// OnHot is called once when a function crosses the threshold.
	OnHot func(name string, profile *FuncProfile)

	enabled  uint32
	hotCount uint64
}

// NewProfiler creates a disabled profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// Enable turns recording on.
func (p *Profiler) Enable() { atomic.StoreUint32(&p.enabled, 1) }

// Disable turns recording off. Existing counters are kept.
func (p *Profiler) Disable() { atomic.StoreUint32(&p.enabled, 0) }

// Enabled reports whether the profiler is recording.
func (p *Profiler) Enabled() bool { return atomic.LoadUint32(&p.enabled) == 1 }

// RecordCall increments the call count for a function. Returns true if
// this call caused the function to become hot.
func (p *Profiler) RecordCall(name string) bool {
	if !p.Enabled() {
		return false
	}
	val, _ := p.profiles.LoadOrStore(name, &FuncProfile{})
	profile := val.(*FuncProfile)
	count := atomic.AddUint64(&profile.CallCount, 1)
	return p.checkHot(name, profile, count+atomic.LoadUint64(&profile.ResumeCount))
}

// RecordResume increments the resume count for a generator function.
// Returns true if this resume caused the function to become hot.
func (p *Profiler) RecordResume(name string) bool {
	if !p.Enabled() {
		return false
	}
	val, _ := p.profiles.LoadOrStore(name, &FuncProfile{})
	profile := val.(*FuncProfile)
	count := atomic.AddUint64(&profile.ResumeCount, 1)
	return p.checkHot(name, profile, count+atomic.LoadUint64(&profile.CallCount))
}

// RecordOp increments the execution count for an opcode.
func (p *Profiler) RecordOp(op Opcode) {
	atomic.AddUint64(&p.ops[op], 1)
}

// OpCount returns how many times an opcode has executed.
func (p *Profiler) OpCount(op Opcode) uint64 {
	return atomic.LoadUint64(&p.ops[op])
}

// OpStats returns the counts for every opcode that executed at least
// once, in opcode order.
func (p *Profiler) OpStats() []OpStat {
	var all []OpStat
	for i := range p.ops {
		n := atomic.LoadUint64(&p.ops[i])
		if n == 0 {
			continue
		}
		op := Opcode(i)
		all = append(all, OpStat{Opcode: op, Name: op.Name(), Count: n})
	}
	return all
}

func (p *Profiler) checkHot(name string, profile *FuncProfile, total uint64) bool {
	if !profile.IsHot && total >= p.HotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(name, profile)
		}
		return true
	}
	return false
}

// Get returns the profile for a function, or nil if not tracked.
func (p *Profiler) Get(name string) *FuncProfile {
	if val, ok := p.profiles.Load(name); ok {
		return val.(*FuncProfile)
	}
	return nil
}

// IsHot returns true if the function has exceeded the hot threshold.
func (p *Profiler) IsHot(name string) bool {
	profile := p.Get(name)
	return profile != nil && profile.IsHot
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalFunctions int
	HotFunctions   int
	TotalCalls     uint64
	TotalResumes   uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*FuncProfile)
		stats.TotalFunctions++
		stats.TotalCalls += atomic.LoadUint64(&profile.CallCount)
		stats.TotalResumes += atomic.LoadUint64(&profile.ResumeCount)
		if profile.IsHot {
			stats.HotFunctions++
		}
		return true
	})
	return stats
}

// Snapshot returns a copy of every tracked function's counters.
func (p *Profiler) Snapshot() []FuncStat {
	var all []FuncStat
	p.profiles.Range(func(key, value any) bool {
		profile := value.(*FuncProfile)
		all = append(all, FuncStat{
			Name:    key.(string),
			Calls:   atomic.LoadUint64(&profile.CallCount),
			Resumes: atomic.LoadUint64(&profile.ResumeCount),
			Hot:     profile.IsHot,
		})
		return true
	})
	return all
}

// Top returns the N most frequently entered functions.
func (p *Profiler) Top(n int) []FuncStat {
	all := p.Snapshot()

	// Selection sort for top N, fine for small N.
	for i := 0; i < n && i < len(all); i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].Calls+all[j].Resumes > all[maxIdx].Calls+all[maxIdx].Resumes {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles = sync.Map{}
	for i := range p.ops {
		atomic.StoreUint64(&p.ops[i], 0)
	}
	atomic.StoreUint64(&p.hotCount, 0)
}
