package domain

import (
	"testing"
	"time"
)

func TestNodeStatus_Ordering(t *testing.T) {
	if !NodeStatusQueued.Before(NodeStatusInProgress) {
		t.Error("Queued should be before InProgress")
	}
	if !NodeStatusInProgress.Before(NodeStatusFailed) {
		t.Error("InProgress should be before Failed")
	}
	if !NodeStatusInProgress.Before(NodeStatusSuccess) {
		t.Error("InProgress should be before Success")
	}

	// Финальные статусы не упорядочены между собой
	if NodeStatusFailed.Before(NodeStatusSuccess) || NodeStatusSuccess.Before(NodeStatusFailed) {
		t.Error("Failed and Success must not be ordered")
	}
	if NodeStatusFailed.AtLeast(NodeStatusSuccess) || NodeStatusSuccess.AtLeast(NodeStatusFailed) {
		t.Error("terminal statuses must not reach each other")
	}

	for _, s := range []NodeStatus{NodeStatusFailed, NodeStatusStopped, NodeStatusSkipped, NodeStatusSuccess} {
		if !s.AtLeast(NodeStatusInProgress) {
			t.Errorf("%s should be at least in_progress", s)
		}
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []NodeStatus{NodeStatusNotRan, NodeStatusQueued, NodeStatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseNodeStatus(t *testing.T) {
	for status, name := range nodeStatusNames {
		parsed, err := ParseNodeStatus(name)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", name, err)
		}
		if parsed != status {
			t.Errorf("expected %v, got %v", status, parsed)
		}
	}

	if _, err := ParseNodeStatus("bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestMeanUsage(t *testing.T) {
	samples := []Usage{
		{CPU: 10, Memory: 20, Disk: 30, GPU: []GPUUsage{{Memory: 50, Load: 10}}},
		{CPU: 30, Memory: 40, Disk: 30, GPU: []GPUUsage{{Memory: 70, Load: 30}, {Memory: 10, Load: 10}}},
	}

	mean := MeanUsage(samples)

	if mean.CPU != 20 || mean.Memory != 30 || mean.Disk != 30 {
		t.Errorf("unexpected mean: %+v", mean)
	}
	if len(mean.GPU) != 2 {
		t.Fatalf("expected 2 gpus, got %d", len(mean.GPU))
	}
	if mean.GPU[0].Memory != 60 || mean.GPU[0].Load != 20 {
		t.Errorf("unexpected gpu0 mean: %+v", mean.GPU[0])
	}
	// второй ускоритель есть только в одном замере
	if mean.GPU[1].Memory != 10 || mean.GPU[1].Load != 10 {
		t.Errorf("unexpected gpu1 mean: %+v", mean.GPU[1])
	}

	if empty := MeanUsage(nil); empty.CPU != 0 || len(empty.GPU) != 0 {
		t.Errorf("mean of nothing should be zero, got %+v", empty)
	}
}

func TestParsePortRange(t *testing.T) {
	r, err := ParsePortRange("29500-29599")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Low != 29500 || r.High != 29599 {
		t.Errorf("unexpected range: %+v", r)
	}
	if r.String() != "29500-29599" {
		t.Errorf("unexpected string: %s", r.String())
	}

	for _, bad := range []string{"", "29500", "a-b", "10-5", "0-10"} {
		if _, err := ParsePortRange(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNode_IdleFor(t *testing.T) {
	now := time.Now()
	n := &Node{}
	if n.IdleFor(now) < time.Hour {
		t.Error("node without activity should be idle forever")
	}

	started := now.Add(-3 * time.Second)
	n.StartedAt = &started
	if got := n.IdleFor(now); got != 3*time.Second {
		t.Errorf("expected idle time from start, got %s", got)
	}

	n.Touch(now.Add(-10 * time.Second))
	if got := n.IdleFor(now); got != 10*time.Second {
		t.Errorf("expected 10s idle, got %s", got)
	}

	n.MarkInProgress("host", "default", 42, now)
	if n.Status != NodeStatusInProgress || n.PID != 42 || n.ComputerAssigned != "host" {
		t.Errorf("unexpected node after MarkInProgress: %+v", n)
	}
	n.MarkFailed(now)
	if n.Status != NodeStatusFailed || n.FinishedAt == nil {
		t.Error("node should be failed with finish time")
	}
}
