package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagDiscovery_ObserveDedupesSamplesAndSkipsEmpty(t *testing.T) {
	d := NewTagDiscovery()
	d.Observe(map[string]string{"env": "prod", "owner": ""})
	d.Observe(map[string]string{"env": "dev"})
	d.Observe(map[string]string{"env": "prod"}) // duplicate, not re-added

	assert.Equal(t, []string{"env"}, d.Keys())
	assert.Equal(t, []string{"dev", "prod"}, d.SamplesFor("env"))
}

func TestTagDiscovery_CapsAtMaxDiscoveredSamples(t *testing.T) {
	d := NewTagDiscovery()
	for i := 0; i < maxDiscoveredSamples+5; i++ {
		d.Observe(map[string]string{"env": string(rune('a' + i))})
	}
	assert.Len(t, d.SamplesFor("env"), maxDiscoveredSamples)
}
