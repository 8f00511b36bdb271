package raft_test

import (
	"dsbuild/raft"
	"dsbuild/raft/simtest"
	"fmt"
	"sort"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newCluster(t *testing.T, seed int64, n int) *simtest.Cluster {
	c, err := simtest.New(seed, n)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.SendInitForAll())
	require.True(t, c.StepUntilAllInitialized())
	return c
}

func electLeader(t *testing.T, c *simtest.Cluster, after int64) (int, int64) {
	leader, term, ok := c.StepUntilLeader(after)
	require.True(t, ok, "no leader elected after term %d", after)
	return leader, term
}

func expectReply(t *testing.T, c *simtest.Cluster, replica int, status int) {
	resp, err := c.StepUntilLocal(replica)
	require.NoError(t, err)
	require.Equal(t, raft.CommandDone, resp.Type, resp.String())
	assert.Equal(t, resp.Reply.Status, status)
}

// readValue reads through the leader. An attempt may land on a replica
// which cannot serve it, the next one goes to another replica.
func readValue(t *testing.T, c *simtest.Cluster, leader int, key string) *string {
	var err error
	for attempt := 0; attempt < c.Size(); attempt++ {
		var value *string
		if _, value, err = c.Read(leader, key); err == nil {
			return value
		}
	}
	require.NoError(t, err)
	return nil
}

func ptr(s string) *string { return &s }

func TestSingleReplica(t *testing.T) {
	c := newCluster(t, 12345, 1)

	leader, term := electLeader(t, c, 0)
	assert.Equal(t, leader, 0)
	assert.Equal(t, term, int64(1))

	_, err := c.SendCommand(0, raft.Create("key1"))
	require.NoError(t, err)
	expectReply(t, c, 0, raft.CreatedCode)
	_, err = c.SendCommand(0, raft.Update("key1", "val1"))
	require.NoError(t, err)
	expectReply(t, c, 0, raft.UpdatedCode)
	c.StepFor(1)
	assert.Equal(t, len(c.Replica(0).Locals()), 0)

	require.NoError(t, c.Shutdown(0))
	c.StepFor(1)
	require.NoError(t, c.Rerun(0))
	require.True(t, c.StepUntilAllInitialized())
	leader, term = electLeader(t, c, 1)
	assert.Equal(t, leader, 0)
	assert.Equal(t, term, int64(2))

	// replies of the applied log are repeated after the restart
	expectReply(t, c, 0, raft.CreatedCode)
	expectReply(t, c, 0, raft.UpdatedCode)
	c.StepFor(1)
	assert.Equal(t, len(c.Replica(0).Locals()), 0)

	assert.Equal(t, readValue(t, c, 0, "key1"), ptr("val1"))
	assert.Equal(t, readValue(t, c, 0, "key2") == nil, true)
}

func TestSeqNumbers(t *testing.T) {
	c := newCluster(t, 12345, 1)
	electLeader(t, c, 0)

	c1, err := c.SendCommand(0, raft.Create("k1"))
	require.NoError(t, err)
	c2, err := c.SendCommand(0, raft.Update("k1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, c2.Seq, c1.Seq+1)
	c3, err := c.SendRead(0, "k1")
	require.NoError(t, err)
	assert.Equal(t, c3.Seq, c2.Seq+1)

	for _, id := range []raft.CommandID{c1, c2, c3} {
		resp, err := c.StepUntilLocal(0)
		require.NoError(t, err)
		assert.Equal(t, resp.RequestID, id)
	}

	require.NoError(t, c.Shutdown(0))
	c.StepFor(1)
	require.NoError(t, c.Rerun(0))
	require.True(t, c.StepUntilAllInitialized())
	assert.Equal(t, c.Replica(0).Seq(), c3.Seq)
	electLeader(t, c, 1)

	// the two commands are answered again, the read is not
	require.True(t, c.StepUntil(func() bool { return len(c.Replica(0).Locals()) >= 2 }, simtest.DefaultLimit))
	c.StepFor(1)
	assert.Equal(t, len(c.Replica(0).Locals()), 2)
	c.Replica(0).ClearLocals()

	c4, err := c.SendCommand(0, raft.Create("k2"))
	require.NoError(t, err)
	assert.Equal(t, c4.Seq, c3.Seq+1)
	resp, err := c.StepUntilLocal(0)
	require.NoError(t, err)
	assert.Equal(t, resp.RequestID, c4)
}

func TestThreeReplicas(t *testing.T) {
	c := newCluster(t, 12345, 3)
	leader, _ := electLeader(t, c, 0)

	_, err := c.SendCommand(leader, raft.Create("k1"))
	require.NoError(t, err)
	expectReply(t, c, leader, raft.CreatedCode)
	c.StepFor(2)

	// followers send the user to the leader
	for _, follower := range []int{(leader + 1) % 3, (leader + 2) % 3} {
		_, err := c.SendCommand(follower, raft.Create("k2"))
		require.NoError(t, err)
		resp, err := c.StepUntilLocal(follower)
		require.NoError(t, err)
		assert.Equal(t, resp.Type, raft.RedirectedTo)
		assert.Equal(t, resp.To, leader)
		assert.Equal(t, resp.CommitIndex == nil, true)

		_, err = c.SendRead(follower, "k1")
		require.NoError(t, err)
		resp, err = c.StepUntilLocal(follower)
		require.NoError(t, err)
		assert.Equal(t, resp.Type, raft.RedirectedTo)
		assert.Equal(t, resp.To, leader)
	}
	c.StepFor(2)

	// the leader spreads reads evenly over the replicas
	type answer struct {
		Replica int
		Value   string
	}
	var answers []answer
	for i := 0; i < 9; i++ {
		replica, value, err := c.Read(leader, "k1")
		require.NoError(t, err)
		require.NotNil(t, value)
		answers = append(answers, answer{replica, *value})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Replica < answers[j].Replica })
	var want []answer
	for i := 0; i < 9; i++ {
		want = append(want, answer{i / 3, ""})
	}
	if diff := cmp.Diff(want, answers); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}
}

func TestReelection(t *testing.T) {
	c := newCluster(t, 321, 3)
	leader, term := electLeader(t, c, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Shutdown(leader))
		next, nextTerm := electLeader(t, c, term)
		assert.NotEqual(t, next, leader)
		require.Greater(t, nextTerm, term)

		require.NoError(t, c.Rerun(leader))
		require.True(t, c.StepUntilAllInitialized())
		leader, term = next, nextTerm
	}
}

func TestLogReplication(t *testing.T) {
	c := newCluster(t, 333, 3)
	leader, term := electLeader(t, c, 0)

	for iter := 1; iter <= 10; iter++ {
		require.NoError(t, c.Shutdown(leader))
		next, nextTerm := electLeader(t, c, term)
		assert.NotEqual(t, next, leader)
		prev := leader
		leader, term = next, nextTerm

		key, value := fmt.Sprintf("k%d", iter), fmt.Sprintf("v%d", iter)
		reply, err := c.Command(leader, raft.Create(key))
		require.NoError(t, err)
		assert.Equal(t, reply.Status, raft.CreatedCode)
		reply, err = c.Command(leader, raft.Update(key, value))
		require.NoError(t, err)
		assert.Equal(t, reply.Status, raft.UpdatedCode)

		// everything committed under earlier leaders survived
		for n := 1; n <= iter; n++ {
			got := readValue(t, c, leader, fmt.Sprintf("k%d", n))
			assert.Equal(t, got, ptr(fmt.Sprintf("v%d", n)))
		}

		require.NoError(t, c.Rerun(prev))
		c.StepFor(5)
	}
}

func TestNetworkSplit(t *testing.T) {
	c := newCluster(t, 12345, 3)
	leader, term := electLeader(t, c, 0)

	reply, err := c.Command(leader, raft.Create("k1"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.CreatedCode)
	reply, err = c.Command(leader, raft.Update("k1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.UpdatedCode)

	// an isolated leader cannot commit
	c.SplitNetwork(leader)
	_, err = c.SendCommand(leader, raft.Update("k1", "v2"))
	require.NoError(t, err)
	newLeader, newTerm := electLeader(t, c, term)
	c.StepFor(10)
	assert.Equal(t, len(c.Replica(leader).Locals()), 0)
	assert.NotEqual(t, newLeader, leader)
	require.Greater(t, newTerm, term)

	assert.Equal(t, readValue(t, c, newLeader, "k1"), ptr("v1"))
	reply, err = c.Command(newLeader, raft.Update("k1", "v3"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.UpdatedCode)

	// the old leader drops its uncommitted entry once it rejoins
	c.RepairNetwork()
	c.StepFor(10)
	assert.Equal(t, readValue(t, c, newLeader, "k1"), ptr("v3"))
	c.Replica(leader).Raft(func(rf *raft.Raft) {
		assert.Equal(t, *rf.Value("k1"), "v3")
		_, isLeader := rf.GetState()
		assert.Equal(t, isLeader, false)
	})
}

// laggingFollower cuts a follower off, commits an update of k1 without it
// and sends it a read at the new commit index.
func laggingFollower(t *testing.T, c *simtest.Cluster) (int, raft.CommandID) {
	leader, _ := electLeader(t, c, 0)
	reply, err := c.Command(leader, raft.Create("k1"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.CreatedCode)
	reply, err = c.Command(leader, raft.Update("k1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.UpdatedCode)
	c.StepFor(1)

	follower := (leader + 1) % c.Size()
	c.SplitNetwork(follower)
	reply, err = c.Command(leader, raft.Update("k1", "v2"))
	require.NoError(t, err)
	assert.Equal(t, reply.Status, raft.UpdatedCode)

	var commit, applied int64
	c.Replica(leader).Raft(func(rf *raft.Raft) { commit = rf.CommitIndex() })
	c.Replica(follower).Raft(func(rf *raft.Raft) { applied = rf.LastApplied() })
	require.Less(t, applied, commit)

	id, err := c.SendReadAt(follower, "k1", commit)
	require.NoError(t, err)
	c.StepFor(0.5)
	_, answered := c.Replica(follower).Response(id)
	assert.Equal(t, answered, false)
	return follower, id
}

func TestReadHeldUntilCaughtUp(t *testing.T) {
	c := newCluster(t, 12345, 3)
	follower, id := laggingFollower(t, c)

	c.RepairNetwork()
	resp, err := c.StepUntilResponse(follower, id)
	require.NoError(t, err)
	require.Equal(t, raft.ReadValue, resp.Type, resp.String())
	assert.Equal(t, resp.Value, ptr("v2"))
}

func TestHeldReadUnavailableOnElection(t *testing.T) {
	c := newCluster(t, 12345, 3)
	follower, id := laggingFollower(t, c)

	// the isolated follower times out and stands for election
	resp, err := c.StepUntilResponse(follower, id)
	require.NoError(t, err)
	assert.Equal(t, resp.Type, raft.Unavailable)
	require.NotNil(t, c.Replica(follower).State())
	assert.Equal(t, c.Replica(follower).State().Role, raft.CandidateRole)
}
