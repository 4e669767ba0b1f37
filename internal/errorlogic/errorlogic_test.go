package errorlogic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/mini-factory/internal/errorlogic"
)

func TestSetConditionIsLevelTriggered(t *testing.T) {
	l := errorlogic.New()
	assert.False(t, l.HasErrors())

	assert.True(t, l.SetCondition(true, errorlogic.NoSpace))
	assert.True(t, l.SetCondition(true, errorlogic.NoSpace))
	assert.False(t, l.SetCondition(false, errorlogic.NoRecipe))
	assert.Equal(t, []errorlogic.Code{errorlogic.NoSpace}, l.Active())

	l.SetCondition(true, errorlogic.NoEnergyNet)
	assert.Equal(t, []errorlogic.Code{errorlogic.NoEnergyNet, errorlogic.NoSpace}, l.Active())
	assert.Equal(t, "no_energy_net,no_space", l.String())

	l.SetCondition(false, errorlogic.NoSpace)
	l.SetCondition(false, errorlogic.NoEnergyNet)
	assert.False(t, l.HasErrors())
}

func TestMaskRoundTrip(t *testing.T) {
	l := errorlogic.New()
	l.SetCondition(true, errorlogic.NotRaining)
	l.SetCondition(true, errorlogic.NoRecipe)

	observer := errorlogic.New()
	observer.SetCondition(true, errorlogic.Disabled)
	observer.SetMask(l.Mask())

	assert.Equal(t, l.Active(), observer.Active())
	assert.False(t, observer.Contains(errorlogic.Disabled))
}
