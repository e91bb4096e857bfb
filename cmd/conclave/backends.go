package main

import (
	"context"
	"time"

	"github.com/valerka1292/conclave/internal/observability"
	"github.com/valerka1292/conclave/internal/orchestrator"
)

// instrumentBackends wraps each configured tool backend so every
// invocation lands in the tool-execution metric pair.
func instrumentBackends(b orchestrator.Backends, m *observability.Metrics) orchestrator.Backends {
	if m == nil {
		return b
	}
	out := b
	if b.WebSearch != nil {
		out.WebSearch = &meteredSearch{inner: b.WebSearch, m: m}
	}
	if b.Python != nil {
		out.Python = &meteredPython{inner: b.Python, m: m}
	}
	if b.Artifacts != nil {
		out.Artifacts = &meteredArtifacts{inner: b.Artifacts, m: m}
	}
	if b.Processes != nil {
		out.Processes = &meteredProcesses{inner: b.Processes, m: m}
	}
	return out
}

func record(m *observability.Metrics, tool string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordToolExecution(tool, status, time.Since(start))
}

type meteredSearch struct {
	inner orchestrator.WebSearch
	m     *observability.Metrics
}

func (s *meteredSearch) Search(ctx context.Context, query string) (string, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, query)
	record(s.m, orchestrator.ToolWebSearch, start, err)
	return out, err
}

type meteredPython struct {
	inner orchestrator.PythonRunner
	m     *observability.Metrics
}

func (p *meteredPython) Run(ctx context.Context, code string) (string, error) {
	start := time.Now()
	out, err := p.inner.Run(ctx, code)
	record(p.m, orchestrator.ToolPythonRun, start, err)
	return out, err
}

type meteredArtifacts struct {
	inner orchestrator.ArtifactReader
	m     *observability.Metrics
}

func (a *meteredArtifacts) Get(ctx context.Context, id string, startOff, length int) (string, error) {
	start := time.Now()
	out, err := a.inner.Get(ctx, id, startOff, length)
	record(a.m, orchestrator.ToolArtifactRead, start, err)
	return out, err
}

type meteredProcesses struct {
	inner orchestrator.ProcessBackend
	m     *observability.Metrics
}

func (p *meteredProcesses) Start(command string) (int, error) {
	start := time.Now()
	pid, err := p.inner.Start(command)
	record(p.m, orchestrator.ToolProcessStart, start, err)
	return pid, err
}

func (p *meteredProcesses) Read(pid, n int) ([]string, error) {
	start := time.Now()
	lines, err := p.inner.Read(pid, n)
	record(p.m, orchestrator.ToolProcessRead, start, err)
	return lines, err
}

func (p *meteredProcesses) Stop(pid int) error {
	start := time.Now()
	err := p.inner.Stop(pid)
	record(p.m, orchestrator.ToolProcessStop, start, err)
	return err
}
