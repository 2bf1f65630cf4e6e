package disease

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{Susceptible, Exposed}:    true,
		{Exposed, Infected}:       true,
		{Infected, Hospitalised}:  true,
		{Infected, Recovered}:     true,
		{Infected, Dead}:          true,
		{Hospitalised, Recovered}: true,
		{Hospitalised, Dead}:      true,
	}
	for _, from := range States() {
		for _, to := range States() {
			want := from == to || allowed[[2]State{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s→%s", from, to)
		}
	}
	assert.False(t, CanTransition(State(9), Susceptible))
}

func TestTerminalAndInfectious(t *testing.T) {
	assert.True(t, Recovered.Terminal())
	assert.True(t, Dead.Terminal())
	assert.False(t, Hospitalised.Terminal())

	assert.True(t, Infected.Infectious(false))
	assert.False(t, Exposed.Infectious(false))
	assert.True(t, Exposed.Infectious(true))
	assert.False(t, Hospitalised.Infectious(true))
}

func TestParseState(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)

		got, err = ParseState(" " + s.Name() + " ")
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseState("zombie")
	assert.Error(t, err)
}

func TestState_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]State{"seed": Exposed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":"E"}`, string(b))

	var got struct{ S State }
	require.NoError(t, json.Unmarshal([]byte(`{"S":"hospitalised"}`), &got))
	assert.Equal(t, Hospitalised, got.S)

	_, err = json.Marshal(State(9))
	assert.Error(t, err)
}

func TestCounts(t *testing.T) {
	var c Counts
	for _, s := range []State{Susceptible, Susceptible, Exposed, Infected, Hospitalised, Dead} {
		c.Add(s)
	}
	assert.Equal(t, 6, c.Total())
	assert.Equal(t, 2, c.Of(Susceptible))
	assert.Equal(t, 3, c.Active())
	assert.Equal(t, 0, c.Of(Recovered))
}
