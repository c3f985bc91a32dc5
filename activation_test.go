package wgan_go

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActivation(t *testing.T) {
	cases := map[string]Activation{
		"":         ActivationIdentity,
		"linear":   ActivationIdentity,
		"Tanh":     ActivationTanh,
		" sigmoid": ActivationSigmoid,
		"SOFTPLUS": ActivationSoftplus,
		"relu":     ActivationRectify,
	}
	for name, expected := range cases {
		a, err := ParseActivation(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, a, name)
	}
	_, err := ParseActivation("gelu")
	var activationErr *UnknownActivationError
	require.ErrorAs(t, err, &activationErr)
	assert.Equal(t, "gelu", activationErr.Name)
}

func TestActivationTwiceDifferentiable(t *testing.T) {
	for _, a := range []Activation{ActivationIdentity, ActivationTanh, ActivationSigmoid, ActivationSoftplus} {
		assert.True(t, a.TwiceDifferentiable(), a.String())
	}
	assert.False(t, ActivationRectify.TwiceDifferentiable())
}
