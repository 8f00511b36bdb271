package raft

import (
	"dsbuild/process"
	"dsbuild/sim"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// runner runs a function with the context of a simulated process.
type runner struct {
	fn  func(ctx process.Context) error
	err error
}

func (p *runner) OnLocalMessage(ctx process.Context, msg process.Message) error {
	p.err = p.fn(ctx)
	return nil
}

func (p *runner) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	return nil
}

func (p *runner) OnTimer(ctx process.Context, name string) error {
	return nil
}

func runInProcess(t *testing.T, s *sim.Sim, name string, fn func(ctx process.Context) error) error {
	p := &runner{fn: fn}
	_, err := sim.AddProcess(s, name, p, "node")
	require.NoError(t, err)
	require.NoError(t, s.SendLocalMessage(name, "node", process.Info("run")))
	s.StepUntilNoEvents()
	return p.err
}

func load(t *testing.T, s *sim.Sim, name string) *State {
	var st *State
	require.NoError(t, runInProcess(t, s, name, func(ctx process.Context) (err error) {
		st, err = MakePersister(ctx).Load()
		return err
	}))
	return st
}

func TestPersister(t *testing.T) {
	s := sim.New(1)
	defer s.Close()
	require.NoError(t, s.AddNodeWithStorage("node", "node", 1, 1<<15))

	st := load(t, s, "empty")
	assert.Equal(t, st.CurrentTerm, int64(0))
	assert.Equal(t, st.VotedFor, none)
	assert.Equal(t, len(st.Log), 0)

	cmd := &Command{Type: Update("k", "v"), ID: CommandID{Server: 1, Seq: 3}}
	err := runInProcess(t, s, "writer", func(ctx process.Context) error {
		ps := MakePersister(ctx)
		return errors.Join(
			ps.SaveTerm(1),
			ps.SaveVote(2),
			ps.SaveTerm(2),
			ps.SaveVote(none),
			ps.SaveSeqNum(3),
			ps.AppendLog(0, []Entry{{Term: 1}, {Term: 1, Command: cmd}}),
			ps.AppendLog(2, []Entry{{Term: 2}}),
		)
	})
	require.NoError(t, err)

	want := &State{
		CurrentTerm: 2,
		VotedFor:    none,
		Log:         []Entry{{Term: 1}, {Term: 1, Command: cmd}, {Term: 2}},
		SeqNum:      3,
	}
	if diff := cmp.Diff(want, load(t, s, "reader")); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestRewriteLog(t *testing.T) {
	s := sim.New(1)
	defer s.Close()
	require.NoError(t, s.AddNodeWithStorage("node", "node", 1, 1<<15))

	err := runInProcess(t, s, "writer", func(ctx process.Context) error {
		ps := MakePersister(ctx)
		return errors.Join(
			ps.AppendLog(0, []Entry{{Term: 1}, {Term: 1}, {Term: 1}}),
			ps.RewriteLog([]Entry{{Term: 1}}),
			ps.AppendLog(1, []Entry{{Term: 3}}),
			ps.SaveVote(1),
		)
	})
	require.NoError(t, err)

	st := load(t, s, "reader")
	assert.Equal(t, st.Log, []Entry{{Term: 1}, {Term: 3}})
	assert.Equal(t, st.VotedFor, 1)
}

func TestPersisterWithoutStorage(t *testing.T) {
	s := sim.New(1)
	defer s.Close()
	require.NoError(t, s.AddNode("node", "node", 1))

	err := runInProcess(t, s, "runner", func(ctx process.Context) error {
		_, err := MakePersister(ctx).Load()
		return err
	})
	assert.Equal(t, errors.Is(err, process.ErrStorageUnavailable), true)
}
