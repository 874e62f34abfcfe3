package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSystemTopic(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"GERAL", "SISTEMA"}, withSystemTopic([]string{"GERAL"}, "SISTEMA"))
	assert.Equal([]string{"SISTEMA"}, withSystemTopic(nil, "SISTEMA"))
	assert.Equal([]string{"SIS"}, withSystemTopic([]string{"SIS"}, "SISTEMA"))
	assert.Equal([]string{""}, withSystemTopic([]string{""}, "SISTEMA"))
}
