package document

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// wire queues messages for a peer until flushed, preserving send order.
type wire struct {
	queue []*protocol.Message
	fail  error
}

func (w *wire) send(msgType string, payload any) error {
	if w.fail != nil {
		return w.fail
	}
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	w.queue = append(w.queue, msg)
	return nil
}

func (w *wire) flush(t *testing.T, to *Synchronizer) {
	t.Helper()
	for _, msg := range w.queue {
		_, err := to.Apply(msg)
		require.NoError(t, err)
	}
	w.queue = nil
}

func pair() (host, cand *Synchronizer, toCand, toHost *wire) {
	toCand, toHost = &wire{}, &wire{}
	host = NewSynchronizer(protocol.RoleHost, toCand.send)
	cand = NewSynchronizer(protocol.RoleCandidate, toHost.send)
	return host, cand, toCand, toHost
}

func TestLaterCodeEditWins(t *testing.T) {
	host, cand, toCand, toHost := pair()

	require.NoError(t, cand.EditCode("print(1)"))
	toHost.flush(t, host)
	require.NoError(t, host.EditCode("print(2)"))
	toCand.flush(t, cand)

	assert.Equal(t, "print(2)", host.Snapshot().Code)
	assert.Equal(t, "print(2)", cand.Snapshot().Code)
}

func TestSequentialEditsConverge(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		host, cand, toCand, toHost := pair()
		edits := 1 + rng.Intn(30)
		for i := 0; i < edits; i++ {
			code := fmt.Sprintf("x = %d", rng.Int())
			if rng.Intn(2) == 0 {
				require.NoError(t, host.EditCode(code))
			} else {
				require.NoError(t, cand.EditCode(code))
			}
			if rng.Intn(3) == 0 {
				require.NoError(t, host.EditLanguage(Languages()[rng.Intn(len(languages))]))
			}
			toCand.flush(t, cand)
			toHost.flush(t, host)
		}
		assert.Equal(t, host.Snapshot(), cand.Snapshot(), "round %d", round)
	}
}

func TestReceivedChangeOverwritesUnconditionally(t *testing.T) {
	host, cand, toCand, _ := pair()
	require.NoError(t, cand.EditCode("candidate draft"))

	require.NoError(t, host.EditCode("host version"))
	require.NoError(t, host.EditLanguage(Java))
	toCand.flush(t, cand)

	got := cand.Snapshot()
	assert.Equal(t, "host version", got.Code)
	assert.Equal(t, Java, got.Language)
}

func TestOnlyHostEditsTestVectors(t *testing.T) {
	host, cand, toCand, toHost := pair()
	vectors := []TestVector{{Input: "1 2", Expected: "3"}}

	assert.ErrorIs(t, cand.EditTestVectors(vectors), ErrNotPrivileged)
	assert.Empty(t, cand.Snapshot().Vectors)
	assert.Empty(t, toHost.queue)

	require.NoError(t, host.EditTestVectors(vectors))
	toCand.flush(t, cand)
	assert.Equal(t, vectors, cand.Snapshot().Vectors)

	// A host never takes vectors from the candidate side.
	forged := protocol.MustMessage(protocol.TypeTestVectorsChanged, TestVectorsChanged{})
	_, err := host.Apply(forged)
	assert.ErrorIs(t, err, ErrNotPrivileged)
	assert.Equal(t, vectors, host.Snapshot().Vectors)
}

func TestSnapshotIsACopy(t *testing.T) {
	host, _, _, _ := pair()
	require.NoError(t, host.EditTestVectors([]TestVector{{Input: "a", Expected: "b"}}))

	snap := host.Snapshot()
	snap.Vectors[0].Expected = "mutated"
	assert.Equal(t, "b", host.Snapshot().Vectors[0].Expected)
}

func TestUnsupportedLanguage(t *testing.T) {
	host, cand, _, _ := pair()
	assert.ErrorIs(t, host.EditLanguage("cobol"), ErrUnsupportedLanguage)
	assert.Equal(t, Python, host.Snapshot().Language)

	_, err := cand.Apply(protocol.MustMessage(protocol.TypeLanguageChanged, LanguageChanged{Language: "cobol"}))
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestBroadcastFailureKeepsLocalEdit(t *testing.T) {
	w := &wire{fail: errors.New("relay gone")}
	s := NewSynchronizer(protocol.RoleCandidate, w.send)

	err := s.EditCode("still here")
	assert.Error(t, err)
	assert.Equal(t, "still here", s.Snapshot().Code)
}

func TestPushAllSeedsPeer(t *testing.T) {
	host, cand, toCand, _ := pair()
	require.NoError(t, host.EditLanguage(CPP))
	require.NoError(t, host.EditCode("int main() {}"))
	require.NoError(t, host.EditTestVectors([]TestVector{{Input: "", Expected: ""}}))
	toCand.queue = nil

	require.NoError(t, host.PushAll())
	assert.Len(t, toCand.queue, 3)
	toCand.flush(t, cand)
	assert.Equal(t, host.Snapshot(), cand.Snapshot())
}
