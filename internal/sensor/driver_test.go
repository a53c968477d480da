package sensor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manudelosrios02/datalogger/internal/config"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/sensor/ina219"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSimulated(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.Channels[0].REq = 0.1

	set, closer, err := Open(cfg)
	require.NoError(t, err)
	defer closer.Close()

	sample, err := set.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sample.Elapsed)
	assert.Greater(t, sample.Ch1.BusVoltage, sample.Ch2.BusVoltage)
	assert.NotEqual(t, record.MeterUnavailable(), sample.Meter)
}

func TestOpenWithoutMeter(t *testing.T) {
	cfg := config.Default()
	cfg.Meter.Driver = config.DriverNone

	set, closer, err := Open(cfg)
	require.NoError(t, err)
	defer closer.Close()

	sample, err := set.Acquire(1)
	assert.Error(t, err)
	assert.Equal(t, record.MeterUnavailable(), sample.Meter)
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.Driver = "ads1115"
	_, _, err := Open(cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Meter.Driver = "sdm120"
	_, _, err = Open(cfg)
	assert.Error(t, err)
}

func TestOpenINA219MissingBusIsNotFatal(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.Driver = config.DriverINA219
	cfg.Sensors.Bus = "/nonexistent/i2c-9"
	cfg.Meter.Driver = config.DriverNone

	set, closer, err := Open(cfg)
	require.NoError(t, err)
	defer closer.Close()

	_, err = set.Acquire(1)
	assert.Error(t, err)
}

func TestAvailableDrivers(t *testing.T) {
	channels, meters := AvailableDrivers()
	assert.Contains(t, channels, DriverINA219)
	assert.Contains(t, meters, DriverNone)
}

func TestOverflowKeepsFreshReading(t *testing.T) {
	inRange := record.Channel{BusVoltage: 12, ShuntVoltage: 0.3, Current: 3000, Power: 36000}
	saturated := record.Channel{BusVoltage: 12.1, ShuntVoltage: 0.32, Current: 3200, Power: 38700}
	next, nextErr := inRange, error(nil)
	dev := ChannelFunc(func() (record.Channel, error) { return next, nextErr })

	ch := channel(config.Channel{Name: "load", Ratio: 1}, &saturating{name: "load", ch: dev})

	v, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, inRange, v)

	next, nextErr = saturated, fmt.Errorf("ina219 0x40: %w", ina219.ErrOverflow)
	v, err = ch.Read()
	require.NoError(t, err)
	assert.Equal(t, saturated, v, "overflow serves the saturated reading, not the last in-range one")

	next, nextErr = record.Channel{}, errors.New("nack")
	v, err = ch.Read()
	require.Error(t, err)
	assert.Equal(t, saturated, v, "a bus failure after overflow serves the saturated reading")
}
