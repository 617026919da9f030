package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Memory int `validate:"gte=128"`
}

type sample struct {
	Name   string `validate:"required"`
	Policy string `validate:"failurepolicy"`
	Worker inner
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		err := Validate(sample{Name: "rebin", Policy: "tolerate", Worker: inner{Memory: 2048}})
		assert.NoError(t, err)
	})

	t.Run("invalid fields are reported with paths", func(t *testing.T) {
		err := Validate(sample{Policy: "retry", Worker: inner{Memory: 64}})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		errs := err.(ValidationErrors)
		fields := make(map[string]string)
		for _, e := range errs {
			fields[e.Field] = e.Message
		}
		assert.Equal(t, "is required", fields["name"])
		assert.Contains(t, fields["policy"], "tolerate")
		assert.Equal(t, "must be greater than or equal to 128", fields["worker.memory"])
	})
}
