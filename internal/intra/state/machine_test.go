package state

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/stretchr/testify/require"
)

func TestSlotTransitions(t *testing.T) {
	t.Parallel()

	t.Run("starts idle", func(t *testing.T) {
		m := NewMachine()
		require.Equal(t, PhaseIdle, m.Search.Current().Phase)
	})

	t.Run("loading then success", func(t *testing.T) {
		m := NewMachine()
		ticket := m.Search.Start()
		require.Equal(t, PhaseLoading, m.Search.Current().Phase)

		require.True(t, m.Search.Succeed(ticket, intrasdk.Profile{ID: 7, Login: "jsmith"}))

		st := m.Search.Current()
		require.Equal(t, PhaseSuccess, st.Phase)
		require.Equal(t, "jsmith", st.Value.Login)
		require.Nil(t, st.Error)
	})

	t.Run("loading then error keeps the kind", func(t *testing.T) {
		m := NewMachine()
		ticket := m.Search.Start()

		require.True(t, m.Search.Fail(ticket, intrasdk.KindUserNotFound, "user not found"))

		st := m.Search.Current()
		require.Equal(t, PhaseError, st.Phase)
		require.Equal(t, intrasdk.KindUserNotFound, st.Error.Kind)
		require.Nil(t, st.Value)
	})

	t.Run("stale ticket is ignored", func(t *testing.T) {
		m := NewMachine()
		first := m.Search.Start()
		second := m.Search.Start()

		require.False(t, m.Search.Succeed(first, intrasdk.Profile{Login: "old"}))
		require.Equal(t, PhaseLoading, m.Search.Current().Phase)

		require.True(t, m.Search.Succeed(second, intrasdk.Profile{Login: "new"}))
		require.Equal(t, "new", m.Search.Current().Value.Login)
	})

	t.Run("reset discards a late result", func(t *testing.T) {
		m := NewMachine()
		ticket := m.Search.Start()
		m.Search.Reset()

		require.False(t, m.Search.Fail(ticket, intrasdk.KindNetwork, "network error"))
		require.Equal(t, PhaseIdle, m.Search.Current().Phase)
	})

	t.Run("start and reset from every phase", func(t *testing.T) {
		tests := []struct {
			name  string
			setup func(s *Slot[intrasdk.Profile])
			phase Phase
		}{
			{"idle", func(*Slot[intrasdk.Profile]) {}, PhaseIdle},
			{"loading", func(s *Slot[intrasdk.Profile]) { s.Start() }, PhaseLoading},
			{"success", func(s *Slot[intrasdk.Profile]) {
				s.Succeed(s.Start(), intrasdk.Profile{Login: "jsmith"})
			}, PhaseSuccess},
			{"error", func(s *Slot[intrasdk.Profile]) {
				s.Fail(s.Start(), intrasdk.KindNetwork, "network error")
			}, PhaseError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m := NewMachine()
				tt.setup(m.Search)
				require.Equal(t, tt.phase, m.Search.Current().Phase)

				m.Search.Start()
				st := m.Search.Current()
				require.Equal(t, PhaseLoading, st.Phase)
				require.Nil(t, st.Value)
				require.Nil(t, st.Error)

				tt.setup(m.Search)
				m.Search.Reset()
				st = m.Search.Current()
				require.Equal(t, PhaseIdle, st.Phase)
				require.Nil(t, st.Value)
				require.Nil(t, st.Error)
			})
		}
	})

	t.Run("succeed after reset is dropped", func(t *testing.T) {
		m := NewMachine()
		ticket := m.Search.Start()
		m.Search.Reset()

		require.False(t, m.Search.Succeed(ticket, intrasdk.Profile{Login: "late"}))
		require.Equal(t, PhaseIdle, m.Search.Current().Phase)
		require.Nil(t, m.Search.Current().Value)
	})

	t.Run("slots are independent", func(t *testing.T) {
		m := NewMachine()
		auth := m.Auth.Start()
		m.Search.Start()
		m.Search.Reset()

		require.True(t, m.Auth.Succeed(auth, Login{Identity: intrasdk.Identity{UserID: 1, Login: "jdoe"}}))
		require.Equal(t, PhaseSuccess, m.Auth.Current().Phase)
		require.Equal(t, PhaseIdle, m.Search.Current().Phase)
	})
}

func TestMachineReset(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Projects.Succeed(m.Projects.Start(), []intrasdk.Project{{ID: 1}})
	m.Profile.Start()

	require.NoError(t, m.Reset(SlotProjects))
	require.Equal(t, PhaseIdle, m.Projects.Current().Phase)
	require.Equal(t, PhaseLoading, m.Profile.Current().Phase)

	require.ErrorIs(t, m.Reset("bogus"), ErrUnknownSlot)

	m.ResetAll()
	snap := m.Snapshot()
	require.Equal(t, PhaseIdle, snap.Auth.Phase)
	require.Equal(t, PhaseIdle, snap.Search.Phase)
	require.Equal(t, PhaseIdle, snap.Projects.Phase)
	require.Equal(t, PhaseIdle, snap.Profile.Phase)
}

func TestMachineSubscribe(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	events, cancel := m.Subscribe(8)

	ticket := m.Search.Start()
	m.Search.Fail(ticket, intrasdk.KindUserNotFound, "user not found")

	ev := <-events
	require.Equal(t, SlotSearch, ev.Slot)
	require.Equal(t, PhaseLoading, ev.State.(State[intrasdk.Profile]).Phase)

	ev = <-events
	require.Equal(t, PhaseError, ev.State.(State[intrasdk.Profile]).Phase)

	cancel()
	cancel()

	_, open := <-events
	require.False(t, open)

	// Transitions after cancel must not panic on the closed channel.
	m.Search.Reset()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	_, cancel := m.Subscribe(1)
	defer cancel()

	for range 10 {
		m.Profile.Start()
	}
	require.Equal(t, PhaseLoading, m.Profile.Current().Phase)
}

func TestSnapshotJSON(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Search.Fail(m.Search.Start(), intrasdk.KindUserNotFound, "user not found")

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "idle", decoded["auth"]["phase"])
	require.Equal(t, "error", decoded["search"]["phase"])
	require.Equal(t, "user_not_found", decoded["search"]["error"].(map[string]any)["kind"])
	require.NotContains(t, decoded["search"], "value")
}
