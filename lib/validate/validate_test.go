package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string `json:"name" validate:"required,max=5"`
	Category string `json:"category" validate:"required"`
	Note     string `json:"-" validate:"max=2"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(&sample{Name: "ok", Category: "c"}))

	err := Struct(&sample{Name: "toolong"})
	require.Error(t, err)
	assert.Equal(t, "name is longer than 5; category is required", err.Error())

	assert.EqualError(t, Struct(nil), "is nil")
	assert.EqualError(t, Struct(42), "not a struct")
}
