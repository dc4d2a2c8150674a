package config

import (
	"testing"

	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
)

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("E3DC_Home")
	assert.NoError(t, err)
	assert.Equal(t, "e3dc_home", topic)

	_, err = CheckMQTTTopic("e3dc/home")
	assert.Error(t, err)
}

func TestCheckPowermeters(t *testing.T) {
	assert.NoError(t, CheckPowermeters([]e3dc.PowermeterConfig{{Index: 1, Key: "pv-east"}, {Index: 2, Key: "heatpump"}}))
	assert.Error(t, CheckPowermeters([]e3dc.PowermeterConfig{{Index: 1, Key: "pv"}, {Index: 2, Key: "pv"}}))
	assert.Error(t, CheckPowermeters([]e3dc.PowermeterConfig{{Index: 1, Key: "PV East"}}))
}
